package store

import (
	"context"
	"time"

	"github.com/bargainlabs/dealhound/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// RunOutcome carries everything recorded when a run finishes, whether it
// completed or failed.
type RunOutcome struct {
	Status      model.RunStatus
	Opportunity *model.Opportunity
	Summary     string
	Error       string
	Usage       model.RunUsage
}

// Store defines the persistence interface for hunt runs and the deals
// they surface.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, memory []string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, outcome RunOutcome) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Surfaced deals double as planner memory: their locators are fed
	// back to the scanner on later runs.
	RecordSurfacedDeal(ctx context.Context, runID string, opp model.Opportunity) (*model.SurfacedDeal, error)
	ListSurfacedDeals(ctx context.Context, limit int) ([]model.SurfacedDeal, error)
	ListSurfacedURLs(ctx context.Context) ([]string, error)
	ClearSurfacedDeals(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
