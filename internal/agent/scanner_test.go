package agent

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/pkg/dealfeed"
)

type fakeFeed struct {
	resp *dealfeed.ScanResponse
	err  error
	reqs []dealfeed.ScanRequest
}

func (f *fakeFeed) Scan(_ context.Context, req dealfeed.ScanRequest) (*dealfeed.ScanResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestDealFeedScanner(t *testing.T) {
	t.Parallel()

	feed := &fakeFeed{resp: &dealfeed.ScanResponse{Deals: []dealfeed.Deal{
		{Description: "Robot vacuum", Price: 99.99, URL: "http://a"},
		{Description: "Air fryer", Price: 45.0, URL: "http://b"},
	}}}
	scanner := NewDealFeedScanner(feed)

	deals, err := scanner.Scan(context.Background(), []string{"http://seen"})
	require.NoError(t, err)

	assert.Equal(t, []model.Deal{
		{Description: "Robot vacuum", Price: 99.99, URL: "http://a"},
		{Description: "Air fryer", Price: 45.0, URL: "http://b"},
	}, deals)
	require.Len(t, feed.reqs, 1)
	assert.Equal(t, []string{"http://seen"}, feed.reqs[0].KnownURLs)
}

func TestDealFeedScanner_EmptyFeed(t *testing.T) {
	t.Parallel()

	feed := &fakeFeed{resp: &dealfeed.ScanResponse{}}
	scanner := NewDealFeedScanner(feed)

	deals, err := scanner.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestDealFeedScanner_Error(t *testing.T) {
	t.Parallel()

	feed := &fakeFeed{err: eris.New("dealfeed: scan request: connection refused")}
	scanner := NewDealFeedScanner(feed)

	_, err := scanner.Scan(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dealfeed: scan request")
}
