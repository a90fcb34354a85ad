// Package hunt ties one full hunt together: it loads planner memory from
// the store, opens a run record, drives the planner, and persists whatever
// came out the other end.
package hunt

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/cost"
	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/monitoring"
	"github.com/bargainlabs/dealhound/internal/store"
	"github.com/bargainlabs/dealhound/internal/valuation"
)

// Planner runs one autonomous hunt over the given memory.
type Planner interface {
	Plan(ctx context.Context, memory []string) (*model.Opportunity, error)
}

// Runner orchestrates hunt runs end to end.
type Runner struct {
	store   store.Store
	planner Planner
	tracker *cost.Tracker
	metrics *monitoring.Metrics
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTracker attributes token spend to each run. The tracker is reset at
// the start of every run.
func WithTracker(t *cost.Tracker) Option {
	return func(r *Runner) { r.tracker = t }
}

// WithMetrics records Prometheus counters per finished run.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a hunt runner.
func NewRunner(st store.Store, planner Planner, opts ...Option) *Runner {
	r := &Runner{store: st, planner: planner}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a single hunt. The returned Run reflects the final persisted
// state; on planner failure it is returned alongside the error so callers
// still see the run ID and any opportunity that landed before the fault.
func (r *Runner) Run(ctx context.Context) (*model.Run, error) {
	run, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, run)
}

// Begin loads planner memory and opens the run record without starting the
// hunt. Callers that need the run ID before the hunt finishes, like the
// HTTP API, call Begin, reply with the ID, and Execute in the background.
func (r *Runner) Begin(ctx context.Context) (*model.Run, error) {
	memory, err := r.store.ListSurfacedURLs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "hunt: load memory")
	}

	run, err := r.store.CreateRun(ctx, memory)
	if err != nil {
		return nil, eris.Wrap(err, "hunt: create run")
	}

	zap.L().Info("hunt starting",
		zap.String("run_id", run.ID),
		zap.Int("memory", len(memory)),
	)
	return run, nil
}

// Execute drives the planner for a run opened by Begin and persists the
// outcome.
func (r *Runner) Execute(ctx context.Context, run *model.Run) (*model.Run, error) {
	log := zap.L().With(zap.String("run_id", run.ID))

	setStatus := func(status model.RunStatus) {
		if statusErr := r.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("hunt: failed to update status", zap.Error(statusErr))
		}
	}
	setStatus(model.RunStatusPlanning)
	run.Status = model.RunStatusPlanning

	r.tracker.Reset()
	start := time.Now()
	opp, planErr := r.planner.Plan(ctx, run.Memory)
	elapsed := time.Since(start)

	snap := r.tracker.Snapshot()
	usage := model.RunUsage{
		InputTokens:  int(snap.InputTokens),
		OutputTokens: int(snap.OutputTokens),
		Cost:         snap.Cost,
	}

	if opp != nil {
		if _, dealErr := r.store.RecordSurfacedDeal(ctx, run.ID, *opp); dealErr != nil {
			log.Warn("hunt: failed to record surfaced deal", zap.Error(dealErr))
		}
	}

	outcome := store.RunOutcome{
		Opportunity: opp,
		Summary:     summarize(opp),
		Usage:       usage,
	}
	if planErr != nil {
		outcome.Status = model.RunStatusFailed
		outcome.Error = planErr.Error()
	} else {
		outcome.Status = model.RunStatusComplete
	}

	if finishErr := r.store.FinishRun(ctx, run.ID, outcome); finishErr != nil {
		if planErr != nil {
			log.Warn("hunt: failed to record failure", zap.Error(finishErr))
		} else {
			return nil, eris.Wrap(finishErr, "hunt: finish run")
		}
	}

	run.Status = outcome.Status
	run.Opportunity = opp
	run.Summary = outcome.Summary
	run.Error = outcome.Error
	run.Usage = usage
	run.UpdatedAt = time.Now().UTC()

	r.metrics.ObserveHunt(outcome.Status, elapsed, usage, opp != nil)

	if planErr != nil {
		log.Error("hunt failed", zap.Duration("elapsed", elapsed), zap.Error(planErr))
		return run, eris.Wrap(planErr, "hunt: plan")
	}

	log.Info("hunt complete",
		zap.Duration("elapsed", elapsed),
		zap.Bool("opportunity", opp != nil),
		zap.Float64("cost_usd", usage.Cost),
	)
	return run, nil
}

// summarize renders a one-line human summary for the run record.
func summarize(opp *model.Opportunity) string {
	if opp == nil {
		return "no deal cleared the bar"
	}
	return fmt.Sprintf("surfaced %q at %s, estimated worth %s (discount %s)",
		opp.Deal.Description,
		valuation.FormatUSD(opp.Deal.Price),
		valuation.FormatUSD(opp.Estimate),
		valuation.FormatUSD(opp.Discount),
	)
}
