package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargainlabs/dealhound/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleOpportunity() model.Opportunity {
	return model.NewOpportunity(model.Deal{
		Description: "Widget X with all the trimmings",
		Price:       20,
		URL:         "https://deals.example.com/widget-x",
	}, 50)
}

// --- Runs ---

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	memory := []string{"https://deals.example.com/widget-x", "https://deals.example.com/gadget-y"}
	created, err := st.CreateRun(ctx, memory)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.RunStatusQueued, created.Status)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Equal(t, memory, got.Memory)
	assert.Nil(t, got.Opportunity)
	assert.Empty(t, got.Summary)
	assert.Empty(t, got.Error)
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, 5*time.Second)
}

func TestSQLite_CreateRun_EmptyMemory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Memory)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, created.ID, model.RunStatusPlanning))

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPlanning, got.Status)
}

func TestSQLite_UpdateRunStatus_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "nope", model.RunStatusPlanning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_FinishRun_Complete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	opp := sampleOpportunity()
	err = st.FinishRun(ctx, created.ID, RunOutcome{
		Status:      model.RunStatusComplete,
		Opportunity: &opp,
		Summary:     "OK",
		Usage:       model.RunUsage{InputTokens: 1200, OutputTokens: 300, Cost: 0.0081},
	})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Opportunity)
	assert.Equal(t, "Widget X with all the trimmings", got.Opportunity.Deal.Description)
	assert.InDelta(t, 30.0, got.Opportunity.Discount, 1e-9)
	assert.Equal(t, "OK", got.Summary)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1200, got.Usage.InputTokens)
	assert.Equal(t, 300, got.Usage.OutputTokens)
	assert.InDelta(t, 0.0081, got.Usage.Cost, 1e-9)
}

func TestSQLite_FinishRun_Failed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	err = st.FinishRun(ctx, created.ID, RunOutcome{
		Status: model.RunStatusFailed,
		Error:  "agent: oracle turn: connection reset",
	})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Nil(t, got.Opportunity)
	assert.Equal(t, "agent: oracle turn: connection reset", got.Error)
}

func TestSQLite_FinishRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FinishRun(context.Background(), "gone", RunOutcome{Status: model.RunStatusComplete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_ListRuns_FilterOrderAndPage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := st.CreateRun(ctx, nil)
		require.NoError(t, err)
		ids = append(ids, r.ID)
		time.Sleep(10 * time.Millisecond) // distinct created_at for ordering
	}
	require.NoError(t, st.FinishRun(ctx, ids[1], RunOutcome{Status: model.RunStatusFailed, Error: "boom"}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ids[1], failed[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestSQLite_ListRuns_CreatedAfter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(20 * time.Millisecond)
	recent, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{CreatedAfter: cutoff})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.ID, runs[0].ID)
	assert.NotEqual(t, old.ID, runs[0].ID)
}

// --- Surfaced deals ---

func TestSQLite_RecordAndListSurfacedDeals(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	first, err := st.RecordSurfacedDeal(ctx, run.ID, sampleOpportunity())
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, run.ID, first.RunID)
	assert.InDelta(t, 30.0, first.Discount, 1e-9)

	time.Sleep(10 * time.Millisecond)
	_, err = st.RecordSurfacedDeal(ctx, run.ID, model.NewOpportunity(model.Deal{
		Description: "Gadget Y",
		Price:       80,
		URL:         "https://deals.example.com/gadget-y",
	}, 50))
	require.NoError(t, err)

	deals, err := st.ListSurfacedDeals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	// Newest first.
	assert.Equal(t, "Gadget Y", deals[0].Deal.Description)
	assert.InDelta(t, -30.0, deals[0].Discount, 1e-9)
	assert.Equal(t, "Widget X with all the trimmings", deals[1].Deal.Description)

	one, err := st.ListSurfacedDeals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Gadget Y", one[0].Deal.Description)
}

func TestSQLite_ListSurfacedURLs_DedupesInFirstSeenOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)

	for _, url := range []string{
		"https://deals.example.com/widget-x",
		"https://deals.example.com/gadget-y",
		"https://deals.example.com/widget-x", // surfaced again on a later run
	} {
		_, err := st.RecordSurfacedDeal(ctx, run.ID, model.NewOpportunity(model.Deal{
			Description: "item", Price: 10, URL: url,
		}, 15))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	urls, err := st.ListSurfacedURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://deals.example.com/widget-x",
		"https://deals.example.com/gadget-y",
	}, urls)
}

func TestSQLite_ClearSurfacedDeals(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)
	_, err = st.RecordSurfacedDeal(ctx, run.ID, sampleOpportunity())
	require.NoError(t, err)
	_, err = st.RecordSurfacedDeal(ctx, run.ID, sampleOpportunity())
	require.NoError(t, err)

	n, err := st.ClearSurfacedDeals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deals, err := st.ListSurfacedDeals(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, deals)

	urls, err := st.ListSurfacedURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)

	n, err = st.ClearSurfacedDeals(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
