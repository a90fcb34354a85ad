package agent

import (
	"context"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/pkg/dealfeed"
)

// DealFeedScanner adapts the deal feed service to the Scanner contract.
type DealFeedScanner struct {
	client dealfeed.Client
}

// NewDealFeedScanner wraps a deal feed client.
func NewDealFeedScanner(client dealfeed.Client) *DealFeedScanner {
	return &DealFeedScanner{client: client}
}

// Scan fetches curated deals, passing previously surfaced locators so
// the feed can exclude them.
func (s *DealFeedScanner) Scan(ctx context.Context, memory []string) ([]model.Deal, error) {
	resp, err := s.client.Scan(ctx, dealfeed.ScanRequest{KnownURLs: memory})
	if err != nil {
		return nil, err
	}
	deals := make([]model.Deal, 0, len(resp.Deals))
	for _, d := range resp.Deals {
		deals = append(deals, model.Deal{
			Description: d.Description,
			Price:       d.Price,
			URL:         d.URL,
		})
	}
	return deals, nil
}
