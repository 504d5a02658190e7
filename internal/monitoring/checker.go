package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
)

// Checker runs periodic ledger checks in the background. An alert is sent
// once when its condition starts and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu     sync.Mutex
	active map[string]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[string]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting ledger checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("ledger checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: check failed", zap.Error(err))
			}
		}
	}
}

// Check collects one snapshot and sends the alerts that are new since the
// previous check. It returns the alerts it tried to send.
func (c *Checker) Check(ctx context.Context) ([]Alert, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		return nil, err
	}

	fresh := c.dedupe(c.alerter.Evaluate(snap))
	if len(fresh) == 0 {
		zap.L().Debug("monitoring: no new alerts")
		return nil, nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	zap.L().Info("monitoring: check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return fresh, nil
}

// dedupe drops alerts already active and forgets the ones that cleared.
func (c *Checker) dedupe(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		key := fmt.Sprintf("%s/%v", a.Type, a.Details["mode"])
		seen[key] = true
		if !c.active[key] {
			fresh = append(fresh, a)
		}
	}
	c.active = seen
	return fresh
}
