package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate    AlertType = "error_rate"
	AlertDLQDepth     AlertType = "dlq_depth"
	AlertBatchStalled AlertType = "batch_stalled"
)

// Severity ranks alerts for the receiver.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and reports at most one alert.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var rules = []rule{errorRateRule, dlqDepthRule, stalledRule}

func errorRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	// Too few lookups make the rate meaningless.
	if cfg.ErrorRateThreshold <= 0 || snap.Resolved == 0 || snap.Resolved < cfg.MinResolved {
		return Alert{}, false
	}
	if snap.ErrorRate <= cfg.ErrorRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertErrorRate,
		Severity: SeverityHigh,
		Message: fmt.Sprintf("Lookup error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d resolved in last %dh)",
			snap.ErrorRate*100, cfg.ErrorRateThreshold*100, snap.Errors, snap.Resolved, snap.LookbackHours),
		Details: map[string]any{
			"error_rate": snap.ErrorRate,
			"threshold":  cfg.ErrorRateThreshold,
			"errors":     snap.Errors,
			"resolved":   snap.Resolved,
		},
	}, true
}

func dlqDepthRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if cfg.DLQThreshold <= 0 || snap.DLQDepth < cfg.DLQThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertDLQDepth,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("%d people in the dead letter queue (threshold %d)", snap.DLQDepth, cfg.DLQThreshold),
		Details:  map[string]any{"dlq_depth": snap.DLQDepth, "threshold": cfg.DLQThreshold},
	}, true
}

func stalledRule(_ config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if !snap.Stalled {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertBatchStalled,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("Batch %s has made no progress recently", snap.ActiveBatchID),
		Details:  map[string]any{"batch_id": snap.ActiveBatchID},
	}, true
}

// Alerter evaluates snapshots against the configured thresholds and posts
// breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate returns the alerts snap triggers, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	ts := a.now().UTC()
	for _, r := range rules {
		if alert, ok := r(a.cfg, snap); ok {
			alert.Timestamp = ts
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// webhookPayload is the body posted to the webhook.
type webhookPayload struct {
	Source   string           `json:"source"`
	Alerts   []Alert          `json:"alerts"`
	Snapshot *MetricsSnapshot `json:"snapshot,omitempty"`
}

// Notify posts alerts to the webhook in one request. It is a no-op without
// a webhook URL or alerts.
func (a *Alerter) Notify(ctx context.Context, alerts []Alert, snap *MetricsSnapshot) error {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Source: "profile-finder", Alerts: alerts, Snapshot: snap})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
