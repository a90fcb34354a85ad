package model

import "time"

// RunStatus represents the current state of a hunt run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusPlanning RunStatus = "planning"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single hunt: one pass of the planning agent over the
// current deal feed.
type Run struct {
	ID          string       `json:"id"`
	Status      RunStatus    `json:"status"`
	Memory      []string     `json:"memory,omitempty"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Error       string       `json:"error,omitempty"`
	Usage       RunUsage     `json:"usage"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RunUsage aggregates token and dollar spend across all model calls in a run.
type RunUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}
