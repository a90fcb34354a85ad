package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/config"
)

// Checker periodically collects a health snapshot and pushes any
// threshold breaches through the alerter.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker wires a collector and alerter into a background loop.
// A non-positive check interval falls back to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  lookback,
	}
}

// Run blocks until ctx is cancelled, evaluating health once per interval.
// The first evaluation happens immediately rather than one interval in.
func (c *Checker) Run(ctx context.Context) {
	zap.L().Info("monitoring: health checker running",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	c.evaluate(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("monitoring: health checker stopped")
			return
		case <-ticker.C:
			c.evaluate(ctx)
		}
	}
}

func (c *Checker) evaluate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: health snapshot failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: all thresholds clear",
			zap.Int("hunts_total", snap.HuntsTotal),
			zap.Float64("fail_rate", snap.HuntFailRate),
		)
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Warn("monitoring: thresholds breached",
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", sent),
	)
}
