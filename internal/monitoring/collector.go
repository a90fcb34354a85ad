package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/store"
)

// collectScanLimit bounds how many rows a single snapshot reads.
const collectScanLimit = 10000

// MetricsSnapshot is one reading of hunt health, derived from the run
// ledger rather than the in-process Prometheus counters so it survives
// restarts.
type MetricsSnapshot struct {
	// Hunts started within the lookback window, by outcome.
	HuntsTotal    int     `json:"hunts_total"`
	HuntsComplete int     `json:"hunts_complete"`
	HuntsFailed   int     `json:"hunts_failed"`
	HuntsQueued   int     `json:"hunts_queued"`
	HuntsPlanning int     `json:"hunts_planning"`
	HuntFailRate  float64 `json:"hunt_fail_rate"`
	HuntCostUSD   float64 `json:"hunt_cost_usd"`
	HuntAvgTokens int     `json:"hunt_avg_tokens"`

	// Deals surfaced within the lookback window.
	DealsSurfaced int     `json:"deals_surfaced"`
	BestDiscount  float64 `json:"best_discount"`

	// Memory depth: distinct deal locators the scanner is told to skip.
	MemorySize int `json:"memory_size"`

	// Window bounds.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector reads hunt history back out of the store and condenses it
// into snapshots the alerter can judge.
type Collector struct {
	store store.Store
}

// NewCollector builds a collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect tallies runs, surfaced deals, and memory depth over the past
// lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	if err := c.tallyRuns(ctx, snap, cutoff); err != nil {
		return nil, err
	}
	if err := c.tallyDeals(ctx, snap, cutoff); err != nil {
		return nil, err
	}

	urls, err := c.store.ListSurfacedURLs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list surfaced urls")
	}
	snap.MemorySize = len(urls)

	return snap, nil
}

func (c *Collector) tallyRuns(ctx context.Context, snap *MetricsSnapshot, cutoff time.Time) error {
	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        collectScanLimit,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: list runs")
	}

	snap.HuntsTotal = len(runs)
	var cost float64
	var tokens int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.HuntsComplete++
		case model.RunStatusFailed:
			snap.HuntsFailed++
		case model.RunStatusQueued:
			snap.HuntsQueued++
		case model.RunStatusPlanning:
			snap.HuntsPlanning++
		}
		cost += r.Usage.Cost
		tokens += r.Usage.InputTokens + r.Usage.OutputTokens
	}

	snap.HuntCostUSD = cost
	if finished := snap.HuntsComplete + snap.HuntsFailed; finished > 0 {
		snap.HuntFailRate = float64(snap.HuntsFailed) / float64(finished)
	}
	if snap.HuntsTotal > 0 {
		snap.HuntAvgTokens = tokens / snap.HuntsTotal
	}
	return nil
}

func (c *Collector) tallyDeals(ctx context.Context, snap *MetricsSnapshot, cutoff time.Time) error {
	deals, err := c.store.ListSurfacedDeals(ctx, collectScanLimit)
	if err != nil {
		return eris.Wrap(err, "monitoring: list surfaced deals")
	}
	for _, d := range deals {
		if d.SurfacedAt.Before(cutoff) {
			continue
		}
		snap.DealsSurfaced++
		if d.Discount > snap.BestDiscount {
			snap.BestDiscount = d.Discount
		}
	}
	return nil
}
