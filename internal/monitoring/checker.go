package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/config"
)

// DefaultCheckInterval is used when the configured interval is not positive.
const DefaultCheckInterval = 5 * time.Minute

// cooldownChecks is how many intervals an alert type stays quiet after it
// was delivered.
const cooldownChecks = 6

// Checker runs periodic health checks and forwards new alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	interval  time.Duration
	now       func() time.Time

	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		interval:  interval,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run checks every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and delivers the alerts that are not cooling
// down. It returns the delivered alerts. Run calls it from one goroutine.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect failed", zap.Error(err))
		return nil
	}

	now := c.now()
	var fresh []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < cooldownChecks*c.interval {
			log.Debug("monitoring: alert suppressed", zap.String("type", string(a.Type)))
			continue
		}
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := c.alerter.Notify(ctx, fresh, snap); err != nil {
		// Not marked as sent, so the next check retries.
		log.Error("monitoring: notify failed", zap.Int("alerts", len(fresh)), zap.Error(err))
		return nil
	}
	for _, a := range fresh {
		c.lastSent[a.Type] = now
		log.Warn("monitoring: alert raised",
			zap.String("type", string(a.Type)),
			zap.String("severity", string(a.Severity)),
			zap.String("message", a.Message),
		)
	}
	return fresh
}
