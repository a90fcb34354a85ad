// Package notify delivers surfaced deals to the user over the
// configured transport.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/model"
	"github.com/bargainlabs/dealhound/internal/valuation"
	"github.com/bargainlabs/dealhound/pkg/pushover"
	"github.com/bargainlabs/dealhound/pkg/telegram"
)

const alertTitle = "DealHound"

// FormatAlert renders a notification body from the deal figures.
func FormatAlert(n model.Notification) string {
	return fmt.Sprintf("Deal alert! Price %s, estimated worth %s, discount %s. %s",
		valuation.FormatUSD(n.DealPrice),
		valuation.FormatUSD(n.Estimate),
		valuation.FormatUSD(n.Estimate-n.DealPrice),
		truncate(n.Description, 120))
}

// Pushover sends deal alerts through the Pushover API.
type Pushover struct {
	client pushover.Client
}

// NewPushover wraps a Pushover client.
func NewPushover(client pushover.Client) *Pushover {
	return &Pushover{client: client}
}

func (p *Pushover) Notify(ctx context.Context, n model.Notification) error {
	return p.client.Push(ctx, pushover.Message{
		Title: alertTitle,
		Body:  FormatAlert(n),
		URL:   n.URL,
	})
}

// Telegram sends deal alerts to a Telegram chat.
type Telegram struct {
	client telegram.Client
}

// NewTelegram wraps a Telegram client.
func NewTelegram(client telegram.Client) *Telegram {
	return &Telegram{client: client}
}

func (t *Telegram) Notify(ctx context.Context, n model.Notification) error {
	return t.client.Push(ctx, telegram.Message{
		Title: alertTitle,
		Body:  FormatAlert(n),
		URL:   n.URL,
	})
}

// Discard logs the alert without delivering it. Used when the transport
// is configured to none, typically in dry runs.
type Discard struct{}

func (Discard) Notify(_ context.Context, n model.Notification) error {
	zap.L().Info("notification suppressed",
		zap.String("description", truncate(n.Description, 80)),
		zap.Float64("deal_price", n.DealPrice),
		zap.Float64("estimate", n.Estimate))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
