package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	runs    []model.Run
	deals   []model.SurfacedDeal
	urls    []string
	listErr error
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockStore) ListSurfacedDeals(_ context.Context, _ int) ([]model.SurfacedDeal, error) {
	return m.deals, nil
}

func (m *mockStore) ListSurfacedURLs(_ context.Context) ([]string, error) {
	return m.urls, nil
}

// Unused store methods that satisfy the interface.
func (m *mockStore) CreateRun(context.Context, []string) (*model.Run, error)        { return nil, nil }
func (m *mockStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (m *mockStore) FinishRun(context.Context, string, store.RunOutcome) error      { return nil }
func (m *mockStore) GetRun(context.Context, string) (*model.Run, error)             { return nil, nil }
func (m *mockStore) RecordSurfacedDeal(context.Context, string, model.Opportunity) (*model.SurfacedDeal, error) {
	return nil, nil
}
func (m *mockStore) ClearSurfacedDeals(context.Context) (int, error) { return 0, nil }
func (m *mockStore) Migrate(context.Context) error                   { return nil }
func (m *mockStore) Close() error                                    { return nil }

func TestCollector_EmptyStore(t *testing.T) {
	st := &mockStore{}
	c := NewCollector(st)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.HuntsTotal)
	assert.Equal(t, 0, snap.HuntsFailed)
	assert.Equal(t, 0.0, snap.HuntFailRate)
	assert.Equal(t, 0.0, snap.HuntCostUSD)
	assert.Equal(t, 0, snap.DealsSurfaced)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_HuntMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour), Usage: model.RunUsage{InputTokens: 3000, OutputTokens: 2000, Cost: 1.50}},
			{ID: "2", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour), Usage: model.RunUsage{InputTokens: 4000, OutputTokens: 3000, Cost: 2.00}},
			{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "4", Status: model.RunStatusQueued, CreatedAt: now.Add(-30 * time.Minute)},
			// Outside the lookback window, filtered out.
			{ID: "5", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
		deals: []model.SurfacedDeal{
			{ID: "d1", Discount: 30.0, SurfacedAt: now.Add(-1 * time.Hour)},
			{ID: "d2", Discount: 650.5, SurfacedAt: now.Add(-2 * time.Hour)},
			// Outside window.
			{ID: "d3", Discount: 9999.0, SurfacedAt: now.Add(-72 * time.Hour)},
		},
		urls: []string{"https://deals.example.com/widget-x", "https://deals.example.com/gadget-y"},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.HuntsTotal)
	assert.Equal(t, 2, snap.HuntsComplete)
	assert.Equal(t, 1, snap.HuntsFailed)
	assert.Equal(t, 1, snap.HuntsQueued)
	assert.InDelta(t, 1.0/3.0, snap.HuntFailRate, 0.001) // 1 failed / 3 finished
	assert.InDelta(t, 3.50, snap.HuntCostUSD, 0.001)
	assert.Equal(t, 3000, snap.HuntAvgTokens) // 12000 tokens / 4 hunts

	assert.Equal(t, 2, snap.DealsSurfaced)
	assert.InDelta(t, 650.5, snap.BestDiscount, 0.001)
	assert.Equal(t, 2, snap.MemorySize)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusQueued, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "2", Status: model.RunStatusPlanning, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	// No finished runs, so failure rate should be 0.
	assert.Equal(t, 0.0, snap.HuntFailRate)
	assert.Equal(t, 1, snap.HuntsPlanning)
}

func TestCollector_StoreError(t *testing.T) {
	st := &mockStore{listErr: assert.AnError}
	c := NewCollector(st)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
