package performance

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metrics"
)

const eventBuffer = 10000

// Tracker records impression/click/conversion signals per creative and
// derives CTR, CPM and engagement on every update. Each recording also
// emits an immutable event onto a lossy buffered stream consumed by the
// analytics engine; producers never block.
type Tracker struct {
	mu      sync.RWMutex
	metrics map[string]*ads.PerformanceMetrics

	events chan *ads.AdEvent
	log    log.Logger
}

// NewTracker creates a tracker with an empty metric table.
func NewTracker(logger log.Logger) *Tracker {
	return &Tracker{
		metrics: make(map[string]*ads.PerformanceMetrics),
		events:  make(chan *ads.AdEvent, eventBuffer),
		log:     logger,
	}
}

// Events exposes the event stream for the analytics ingest loop.
func (t *Tracker) Events() <-chan *ads.AdEvent {
	return t.events
}

// RecordImpression increments the impression counter for a creative.
func (t *Tracker) RecordImpression(creativeID, sessionID string, context map[string]string) {
	t.mu.Lock()
	m := t.entry(creativeID)
	m.Impressions++
	recompute(m)
	t.mu.Unlock()

	metrics.Impressions.Inc()
	t.emit(ads.EventImpression, creativeID, sessionID, context, nil)
}

// RecordClick increments the click counter for a creative.
func (t *Tracker) RecordClick(creativeID, sessionID string, context map[string]string) {
	t.mu.Lock()
	m := t.entry(creativeID)
	m.Clicks++
	recompute(m)
	t.mu.Unlock()

	metrics.Clicks.Inc()
	t.emit(ads.EventClick, creativeID, sessionID, context, nil)
}

// RecordConversion increments the conversion counter and adds the
// conversion value to revenue.
func (t *Tracker) RecordConversion(creativeID, sessionID string, value decimal.Decimal, meta map[string]interface{}) {
	t.mu.Lock()
	m := t.entry(creativeID)
	m.Conversions++
	m.Revenue = m.Revenue.Add(value)
	recompute(m)
	t.mu.Unlock()

	metrics.Conversions.Inc()
	annotated := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		annotated[k] = v
	}
	annotated["value"] = value.InexactFloat64()
	t.emit(ads.EventConversion, creativeID, sessionID, nil, annotated)
}

// Metrics returns a copy of a creative's metrics. Unknown ids yield an
// all-zero struct, never an error.
func (t *Tracker) Metrics(creativeID string) ads.PerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.metrics[creativeID]; ok {
		return *m
	}
	return ads.PerformanceMetrics{CreativeID: creativeID, Revenue: decimal.Zero}
}

// ResetMetrics clears a creative's counters. Explicit admin action only.
func (t *Tracker) ResetMetrics(creativeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.metrics, creativeID)
	t.log.Info("metrics reset", "creative", creativeID)
}

// entry returns the metric row for a creative, creating it when absent.
// Caller holds t.mu.
func (t *Tracker) entry(creativeID string) *ads.PerformanceMetrics {
	m, ok := t.metrics[creativeID]
	if !ok {
		m = &ads.PerformanceMetrics{CreativeID: creativeID, Revenue: decimal.Zero}
		t.metrics[creativeID] = m
	}
	return m
}

// recompute derives ctr/cpm/engagement from the counters. Caller holds
// t.mu.
func recompute(m *ads.PerformanceMetrics) {
	if m.Impressions == 0 {
		m.CTR = 0
		m.CPM = 0
		m.EngagementScore = 0
		return
	}

	impressions := float64(m.Impressions)
	revenue := m.Revenue.InexactFloat64()

	m.CTR = float64(m.Clicks) / impressions * 100
	m.CPM = revenue / impressions * 1000
	conversionRate := float64(m.Conversions) / impressions * 100

	score := math.Min(m.CTR*4, 40) +
		math.Min(conversionRate*400, 40) +
		math.Min(revenue/10, 20)
	m.EngagementScore = math.Max(0, math.Min(score, 100)) / 100
}

func (t *Tracker) emit(typ ads.EventType, creativeID, sessionID string, context map[string]string, meta map[string]interface{}) {
	event := &ads.AdEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		CreativeID: creativeID,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		Context:    context,
		Metadata:   meta,
	}

	select {
	case t.events <- event:
	default:
		// Buffer full, drop event
		metrics.EventsDropped.Inc()
	}
}
