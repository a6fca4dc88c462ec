// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/config"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metrics"
)

var (
	ErrInvalidBatch  = errors.New("event batch has no events collection")
	ErrAlertNotFound = errors.New("alert not found")
)

// EventBatch is one ingestion unit. A nil Events collection makes the
// whole batch invalid; individual invalid events are dropped silently.
type EventBatch struct {
	BatchID    string         `json:"batch_id"`
	Source     string         `json:"source,omitempty"`
	Events     []*ads.AdEvent `json:"events"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Bucket is one per-minute aggregation window.
type Bucket struct {
	Start       time.Time               `json:"start"`
	Events      int64                   `json:"events"`
	Impressions int64                   `json:"impressions"`
	Clicks      int64                   `json:"clicks"`
	Conversions int64                   `json:"conversions"`
	Revenue     decimal.Decimal         `json:"revenue"`
	ByCreative  map[string]int64        `json:"by_creative,omitempty"`
	ByType      map[ads.EventType]int64 `json:"by_type,omitempty"`
}

// CTR returns the bucket's click-through rate in percent.
func (b *Bucket) CTR() float64 {
	if b.Impressions == 0 {
		return 0
	}
	return float64(b.Clicks) / float64(b.Impressions) * 100
}

// Filter selects an event subset for on-demand metric computation.
type Filter struct {
	Start       time.Time       `json:"start,omitempty"`
	End         time.Time       `json:"end,omitempty"`
	CreativeIDs []string        `json:"creative_ids,omitempty"`
	Types       []ads.EventType `json:"types,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
}

func (f *Filter) matches(e *ads.AdEvent) bool {
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	if len(f.CreativeIDs) > 0 && !containsString(f.CreativeIDs, e.CreativeID) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	return true
}

// Engine ingests the event stream, maintains rolling aggregates and
// periodically emits alerts and insights.
type Engine struct {
	mu sync.RWMutex

	events   []*ads.AdEvent
	buckets  map[int64]*Bucket // keyed by unix minute
	alerts   []*Alert
	insights []*Insight

	cfg  config.AnalyticsConfig
	cron *cron.Cron
	log  log.Logger
}

// NewEngine creates an analytics engine with empty state.
func NewEngine(cfg config.AnalyticsConfig, logger log.Logger) *Engine {
	return &Engine{
		buckets: make(map[int64]*Bucket),
		cfg:     cfg,
		log:     logger,
	}
}

// ProcessEventBatch validates, prunes and aggregates one batch. A missing
// events collection is a hard failure; malformed individual events are
// dropped without error and without being counted.
func (e *Engine) ProcessEventBatch(batch *EventBatch) error {
	if batch == nil || batch.Events == nil {
		return ErrInvalidBatch
	}

	accepted := make([]*ads.AdEvent, 0, len(batch.Events))
	var touched []string
	for _, event := range batch.Events {
		if !event.Valid() {
			metrics.EventsDropped.Inc()
			continue
		}
		accepted = append(accepted, event)
		touched = append(touched, event.CreativeID)
	}

	e.mu.Lock()
	e.pruneLocked(time.Now())
	for _, event := range accepted {
		e.events = append(e.events, event)
		e.aggregateLocked(event)
	}
	e.mu.Unlock()

	metrics.EventsIngested.Add(float64(len(accepted)))
	e.checkAlertConditions(touched)

	e.log.Debug("event batch processed",
		"batch", batch.BatchID,
		"accepted", len(accepted),
		"dropped", len(batch.Events)-len(accepted))

	return nil
}

// pruneLocked purges events and buckets older than the retention window.
// Runs as an isolated pass before each batch is aggregated.
func (e *Engine) pruneLocked(now time.Time) {
	cutoff := now.Add(-e.cfg.Retention.Std())

	kept := e.events[:0]
	for _, event := range e.events {
		if !event.Timestamp.Before(cutoff) {
			kept = append(kept, event)
		}
	}
	e.events = kept

	for minute, bucket := range e.buckets {
		if bucket.Start.Before(cutoff) {
			delete(e.buckets, minute)
		}
	}
}

func (e *Engine) aggregateLocked(event *ads.AdEvent) {
	minute := event.Timestamp.Unix() / 60
	bucket, ok := e.buckets[minute]
	if !ok {
		bucket = &Bucket{
			Start:      time.Unix(minute*60, 0),
			Revenue:    decimal.Zero,
			ByCreative: make(map[string]int64),
			ByType:     make(map[ads.EventType]int64),
		}
		e.buckets[minute] = bucket
	}

	bucket.Events++
	bucket.ByCreative[event.CreativeID]++
	bucket.ByType[event.Type]++

	switch event.Type {
	case ads.EventImpression:
		bucket.Impressions++
	case ads.EventClick:
		bucket.Clicks++
	case ads.EventConversion:
		bucket.Conversions++
		bucket.Revenue = bucket.Revenue.Add(eventValue(event))
	}
}

func eventValue(event *ads.AdEvent) decimal.Decimal {
	if event.Metadata == nil {
		return decimal.Zero
	}
	if v, ok := event.Metadata["value"].(float64); ok {
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// Metrics recomputes performance metrics over the filtered event subset.
// Always consistent with the live event store, never cached.
func (e *Engine) Metrics(filter *Filter) ads.PerformanceMetrics {
	if filter == nil {
		filter = &Filter{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return computeMetrics(e.events, filter)
}

func computeMetrics(events []*ads.AdEvent, filter *Filter) ads.PerformanceMetrics {
	m := ads.PerformanceMetrics{Revenue: decimal.Zero}
	if len(filter.CreativeIDs) == 1 {
		m.CreativeID = filter.CreativeIDs[0]
	}

	for _, event := range events {
		if !filter.matches(event) {
			continue
		}
		switch event.Type {
		case ads.EventImpression:
			m.Impressions++
		case ads.EventClick:
			m.Clicks++
		case ads.EventConversion:
			m.Conversions++
			m.Revenue = m.Revenue.Add(eventValue(event))
		}
	}

	if m.Impressions > 0 {
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
	return m
}

// AggregatedMetrics returns the minute buckets inside the time window,
// oldest first.
func (e *Engine) AggregatedMetrics(window time.Duration) []*Bucket {
	cutoff := time.Now().Add(-window)

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Bucket, 0, len(e.buckets))
	for _, bucket := range e.buckets {
		if !bucket.Start.Before(cutoff) {
			out = append(out, bucket)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// EventsByHour returns the hour-of-day breakdown of retained events.
// Computed from the live event store so retention pruning applies.
func (e *Engine) EventsByHour() [24]int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out [24]int64
	for _, event := range e.events {
		out[event.Timestamp.Hour()]++
	}
	return out
}

// Start schedules the periodic insight generation pass.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return
	}
	c := cron.New()
	c.Schedule(cron.Every(e.cfg.InsightInterval.Std()), cron.FuncJob(func() {
		e.GenerateInsights()
	}))
	c.Start()
	e.cron = c
	e.log.Info("insight schedule started", "interval", e.cfg.InsightInterval)
}

// Run drains the performance event stream into batches until the context
// is cancelled. Pending events are flushed before returning.
func (e *Engine) Run(ctx context.Context, events <-chan *ads.AdEvent) {
	ticker := time.NewTicker(e.cfg.IngestFlushInterval.Std())
	defer ticker.Stop()

	pending := make([]*ads.AdEvent, 0, e.cfg.IngestBatchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := &EventBatch{
			Source:     "performance",
			Events:     pending,
			ReceivedAt: time.Now(),
		}
		if err := e.ProcessEventBatch(batch); err != nil {
			e.log.Error("batch processing failed", "error", err)
		}
		pending = make([]*ads.AdEvent, 0, e.cfg.IngestBatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case event, ok := <-events:
			if !ok {
				flush()
				return
			}
			pending = append(pending, event)
			if len(pending) >= e.cfg.IngestBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Destroy cancels the insight schedule and clears all in-memory state.
// The cron is stopped and drained before the state lock is taken so an
// in-flight generation pass can finish.
func (e *Engine) Destroy() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = nil
	e.buckets = make(map[int64]*Bucket)
	e.alerts = nil
	e.insights = nil
	metrics.ActiveAlerts.Set(0)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(list []ads.EventType, t ads.EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
