// Package agent implements the autonomous planning loop that hunts for
// deals. A planner drives a Claude model through a fixed capability set
// (scan, estimate, notify) plus optional sandboxed file tools from an
// MCP sidecar, and captures at most one Opportunity per run.
package agent

import (
	"context"

	"github.com/bargainlabs/dealhound/internal/model"
)

// Scanner surfaces candidate deals. Memory holds locators surfaced on
// earlier runs so the scanner can skip them.
type Scanner interface {
	Scan(ctx context.Context, memory []string) ([]model.Deal, error)
}

// Estimator prices a product from its text description.
type Estimator interface {
	Price(ctx context.Context, description string) (float64, error)
}

// Notifier delivers a surfaced deal to the user.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// run carries the state of one plan invocation. Capability handlers
// receive it explicitly; nothing persists across runs.
type run struct {
	scanner   Scanner
	estimator Estimator
	notifier  Notifier

	memory      []string
	opportunity *model.Opportunity
}
