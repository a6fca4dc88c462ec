// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adxyz/adserve/pkg/metrics"
)

// AlertType classifies a threshold breach.
type AlertType string

const (
	AlertLowCTR     AlertType = "low_ctr"
	AlertHighCPM    AlertType = "high_cpm"
	AlertLowRevenue AlertType = "low_revenue"
)

// Alert is a threshold breach that persists until acknowledged.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	CreativeID   string    `json:"creative_id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// checkAlertConditions compares freshly computed per-creative metrics
// against the configured thresholds for every creative touched by a
// batch. An unacknowledged alert of the same type for the same creative
// suppresses a duplicate.
func (e *Engine) checkAlertConditions(creativeIDs []string) {
	seen := make(map[string]struct{}, len(creativeIDs))
	for _, id := range creativeIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		m := e.Metrics(&Filter{CreativeIDs: []string{id}})
		if m.Impressions < e.cfg.Alerts.MinImpressions {
			continue
		}

		if m.CTR < e.cfg.Alerts.MinCTR {
			e.raiseAlert(AlertLowCTR, id, fmt.Sprintf(
				"creative %s CTR %.2f%% below threshold %.2f%%", id, m.CTR, e.cfg.Alerts.MinCTR))
		}
		if m.CPM > e.cfg.Alerts.MaxCPM {
			e.raiseAlert(AlertHighCPM, id, fmt.Sprintf(
				"creative %s CPM $%.2f above threshold $%.2f", id, m.CPM, e.cfg.Alerts.MaxCPM))
		}
		if m.Revenue.InexactFloat64() < e.cfg.Alerts.MinRevenue {
			e.raiseAlert(AlertLowRevenue, id, fmt.Sprintf(
				"creative %s revenue $%s below threshold $%.2f", id, m.Revenue.StringFixed(2), e.cfg.Alerts.MinRevenue))
		}
	}
}

func (e *Engine) raiseAlert(typ AlertType, creativeID, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.alerts {
		if a.Type == typ && a.CreativeID == creativeID && !a.Acknowledged {
			return
		}
	}

	alert := &Alert{
		ID:         uuid.NewString(),
		Type:       typ,
		CreativeID: creativeID,
		Message:    message,
		CreatedAt:  time.Now(),
	}
	e.alerts = append(e.alerts, alert)
	metrics.ActiveAlerts.Inc()

	e.log.Warn("alert raised", "type", typ, "creative", creativeID, "message", message)
}

// Alerts returns all unacknowledged alerts.
func (e *Engine) Alerts() []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// AcknowledgeAlert marks an alert handled. Acknowledged alerts stop
// appearing in Alerts and no longer suppress re-raising.
func (e *Engine) AcknowledgeAlert(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.alerts {
		if a.ID == id {
			if !a.Acknowledged {
				a.Acknowledged = true
				metrics.ActiveAlerts.Dec()
			}
			return nil
		}
	}
	return ErrAlertNotFound
}
