package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/config"
)

// AlertType names the threshold a breach came from.
type AlertType string

const (
	AlertHuntFailureRate AlertType = "hunt_failure_rate"
	AlertCostOverrun     AlertType = "cost_overrun"
	AlertDealDrought     AlertType = "deal_drought"
)

// rateAlertMinFinished is how many finished hunts a window needs before
// the failure rate is considered meaningful.
const rateAlertMinFinished = 5

// Alert is one threshold breach, shipped to the webhook as JSON.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func newAlert(t AlertType, severity, msg string, details map[string]any) Alert {
	return Alert{
		Type:      t,
		Severity:  severity,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Alerter turns a MetricsSnapshot into alerts and delivers them. With no
// webhook configured, triggered alerts are only logged by the caller.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter builds an alerter from the monitoring thresholds.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate compares a snapshot against every configured threshold.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	if alert, ok := a.failureRate(snap); ok {
		alerts = append(alerts, alert)
	}
	if alert, ok := a.costOverrun(snap); ok {
		alerts = append(alerts, alert)
	}
	if alert, ok := a.dealDrought(snap); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

func (a *Alerter) failureRate(snap *MetricsSnapshot) (Alert, bool) {
	finished := snap.HuntsComplete + snap.HuntsFailed
	if finished < rateAlertMinFinished || snap.HuntFailRate <= a.cfg.FailureRateThreshold {
		return Alert{}, false
	}
	msg := fmt.Sprintf("hunt failure rate %.1f%% over the last %dh (threshold %.1f%%, %d of %d finished hunts failed)",
		snap.HuntFailRate*100, snap.LookbackHours, a.cfg.FailureRateThreshold*100, snap.HuntsFailed, finished)
	return newAlert(AlertHuntFailureRate, "high", msg, map[string]any{
		"failure_rate": snap.HuntFailRate,
		"threshold":    a.cfg.FailureRateThreshold,
		"failed":       snap.HuntsFailed,
		"finished":     finished,
	}), true
}

func (a *Alerter) costOverrun(snap *MetricsSnapshot) (Alert, bool) {
	if a.cfg.CostThresholdUSD <= 0 || snap.HuntCostUSD <= a.cfg.CostThresholdUSD {
		return Alert{}, false
	}
	msg := fmt.Sprintf("model spend $%.2f over the last %dh exceeds the $%.2f budget",
		snap.HuntCostUSD, snap.LookbackHours, a.cfg.CostThresholdUSD)
	return newAlert(AlertCostOverrun, "high", msg, map[string]any{
		"cost_usd":      snap.HuntCostUSD,
		"threshold_usd": a.cfg.CostThresholdUSD,
		"hunts_total":   snap.HuntsTotal,
	}), true
}

// dealDrought fires when hunting keeps finishing clean but nothing is ever
// worth surfacing, which usually means the feed dried up or the memory has
// swallowed every candidate.
func (a *Alerter) dealDrought(snap *MetricsSnapshot) (Alert, bool) {
	if a.cfg.DroughtMinHunts <= 0 || snap.HuntsComplete < a.cfg.DroughtMinHunts || snap.DealsSurfaced > 0 {
		return Alert{}, false
	}
	msg := fmt.Sprintf("%d hunts completed over the last %dh without surfacing a deal",
		snap.HuntsComplete, snap.LookbackHours)
	return newAlert(AlertDealDrought, "medium", msg, map[string]any{
		"hunts_complete": snap.HuntsComplete,
		"memory_size":    snap.MemorySize,
	}), true
}

// SendAlerts posts each alert to the webhook and reports how many landed.
// Delivery failures are logged and skipped so one bad alert cannot block
// the rest.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.deliver(ctx, alert); err != nil {
			zap.L().Error("monitoring: alert delivery failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) deliver(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook post")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook answered %d", resp.StatusCode)
	}
	return nil
}
