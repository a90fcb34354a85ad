package model

import "time"

// Deal is an immutable record of a scanned listing. Deals are produced by
// the external deal feed and are read-only downstream.
type Deal struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	URL         string  `json:"url"`
}

// Opportunity is the single accepted deal for a run, paired with its
// estimated true value and the computed discount.
type Opportunity struct {
	Deal     Deal    `json:"deal"`
	Estimate float64 `json:"estimate"`
	Discount float64 `json:"discount"`
}

// NewOpportunity pairs a deal with its estimate. Discount is always
// estimate minus deal price; a negative discount is preserved, not rejected.
func NewOpportunity(deal Deal, estimate float64) Opportunity {
	return Opportunity{
		Deal:     deal,
		Estimate: estimate,
		Discount: estimate - deal.Price,
	}
}

// Notification carries the fields sent to the user when a deal is surfaced.
type Notification struct {
	Description string  `json:"description"`
	DealPrice   float64 `json:"deal_price"`
	Estimate    float64 `json:"estimated_true_value"`
	URL         string  `json:"url"`
}

// SurfacedDeal is the persisted record of an opportunity that was pushed
// to the user. Its locator feeds the memory of later runs.
type SurfacedDeal struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Deal       Deal      `json:"deal"`
	Estimate   float64   `json:"estimate"`
	Discount   float64   `json:"discount"`
	SurfacedAt time.Time `json:"surfaced_at"`
}
