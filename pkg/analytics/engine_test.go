// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/config"
	"github.com/adxyz/adserve/pkg/log"
)

func testConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		Retention:           config.Duration(72 * time.Hour),
		InsightInterval:     config.Duration(time.Minute),
		IngestBatchSize:     256,
		IngestFlushInterval: config.Duration(10 * time.Millisecond),
		Alerts: config.AlertThresholds{
			MinCTR:         0.5,
			MaxCPM:         20.0,
			MinRevenue:     1.0,
			MinImpressions: 100,
		},
	}
}

func newTestEngine(cfg config.AnalyticsConfig) *Engine {
	return NewEngine(cfg, log.NoOp())
}

func mkEvent(typ ads.EventType, creativeID, sessionID string, ts time.Time) *ads.AdEvent {
	return &ads.AdEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		CreativeID: creativeID,
		SessionID:  sessionID,
		Timestamp:  ts,
	}
}

func mkConversion(creativeID, sessionID string, ts time.Time, value float64) *ads.AdEvent {
	e := mkEvent(ads.EventConversion, creativeID, sessionID, ts)
	e.Metadata = map[string]interface{}{"value": value}
	return e
}

func ingest(t *testing.T, e *Engine, events ...*ads.AdEvent) {
	t.Helper()
	batch := &EventBatch{
		BatchID:    uuid.NewString(),
		Source:     "test",
		Events:     events,
		ReceivedAt: time.Now(),
	}
	require.NoError(t, e.ProcessEventBatch(batch))
}

func TestProcessEventBatchRejectsMissingEvents(t *testing.T) {
	require := require.New(t)
	engine := newTestEngine(testConfig())

	require.ErrorIs(engine.ProcessEventBatch(nil), ErrInvalidBatch)
	require.ErrorIs(engine.ProcessEventBatch(&EventBatch{BatchID: "b-1"}), ErrInvalidBatch)

	// An empty-but-present collection is a valid no-op batch.
	require.NoError(engine.ProcessEventBatch(&EventBatch{Events: []*ads.AdEvent{}}))
}

func TestInvalidEventsDroppedIndividually(t *testing.T) {
	require := require.New(t)
	engine := newTestEngine(testConfig())

	now := time.Now()
	valid := mkEvent(ads.EventImpression, "cr-1", "sess-1", now)
	noID := mkEvent(ads.EventImpression, "cr-1", "sess-1", now)
	noID.ID = ""
	noTimestamp := mkEvent(ads.EventClick, "cr-1", "sess-1", now)
	noTimestamp.Timestamp = time.Time{}

	ingest(t, engine, valid, noID, noTimestamp)

	m := engine.Metrics(nil)
	require.Equal(int64(1), m.Impressions)
	require.Zero(m.Clicks)
}

func TestRetentionPruning(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Retention = config.Duration(time.Hour)
	engine := newTestEngine(cfg)

	now := time.Now()
	ingest(t, engine, mkEvent(ads.EventImpression, "cr-old", "sess-1", now.Add(-2*time.Hour)))
	require.Equal(int64(1), engine.Metrics(nil).Impressions)

	// The next batch prunes everything outside the retention window.
	ingest(t, engine, mkEvent(ads.EventImpression, "cr-new", "sess-1", now))

	m := engine.Metrics(&Filter{CreativeIDs: []string{"cr-old"}})
	require.Zero(m.Impressions)
	require.Equal(int64(1), engine.Metrics(nil).Impressions)
	require.Len(engine.AggregatedMetrics(cfg.Retention.Std()), 1)
}

func TestMetricsFilter(t *testing.T) {
	require := require.New(t)
	engine := newTestEngine(testConfig())

	now := time.Now()
	ingest(t, engine,
		mkEvent(ads.EventImpression, "cr-1", "sess-a", now),
		mkEvent(ads.EventImpression, "cr-1", "sess-b", now),
		mkEvent(ads.EventClick, "cr-1", "sess-a", now),
		mkEvent(ads.EventImpression, "cr-2", "sess-a", now),
		mkConversion("cr-2", "sess-a", now, 5.0),
	)

	byCreative := engine.Metrics(&Filter{CreativeIDs: []string{"cr-1"}})
	require.Equal("cr-1", byCreative.CreativeID)
	require.Equal(int64(2), byCreative.Impressions)
	require.Equal(int64(1), byCreative.Clicks)
	require.InDelta(50.0, byCreative.CTR, 1e-9)

	bySession := engine.Metrics(&Filter{SessionID: "sess-b"})
	require.Equal(int64(1), bySession.Impressions)
	require.Zero(bySession.Clicks)

	byType := engine.Metrics(&Filter{Types: []ads.EventType{ads.EventConversion}})
	require.Equal(int64(1), byType.Conversions)
	require.InDelta(5.0, byType.Revenue.InexactFloat64(), 1e-9)

	outsideWindow := engine.Metrics(&Filter{End: now.Add(-time.Minute)})
	require.Zero(outsideWindow.Impressions)
}

func TestAggregatedMetricsOrderedBuckets(t *testing.T) {
	require := require.New(t)
	engine := newTestEngine(testConfig())

	base := time.Now().Truncate(time.Minute).Add(-10 * time.Minute)
	ingest(t, engine,
		mkEvent(ads.EventImpression, "cr-1", "sess-1", base.Add(2*time.Minute)),
		mkEvent(ads.EventImpression, "cr-1", "sess-1", base),
		mkEvent(ads.EventClick, "cr-1", "sess-1", base),
		mkConversion("cr-1", "sess-1", base.Add(4*time.Minute), 2.5),
	)

	buckets := engine.AggregatedMetrics(time.Hour)
	require.Len(buckets, 3)
	require.True(buckets[0].Start.Before(buckets[1].Start))
	require.True(buckets[1].Start.Before(buckets[2].Start))

	first := buckets[0]
	require.Equal(int64(2), first.Events)
	require.Equal(int64(1), first.Impressions)
	require.Equal(int64(1), first.Clicks)
	require.InDelta(100.0, first.CTR(), 1e-9)
	require.Equal(int64(2), first.ByCreative["cr-1"])

	last := buckets[2]
	require.Equal(int64(1), last.Conversions)
	require.InDelta(2.5, last.Revenue.InexactFloat64(), 1e-9)

	// A narrow window excludes the older buckets.
	require.Empty(engine.AggregatedMetrics(time.Minute))
}

func TestEventsByHour(t *testing.T) {
	require := require.New(t)
	engine := newTestEngine(testConfig())

	ts := time.Now()
	ingest(t, engine,
		mkEvent(ads.EventImpression, "cr-1", "sess-1", ts),
		mkEvent(ads.EventClick, "cr-1", "sess-1", ts),
	)

	byHour := engine.EventsByHour()
	require.Equal(int64(2), byHour[ts.Hour()])
}

func TestEventsByHourRespectsRetention(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Retention = config.Duration(time.Hour)
	engine := newTestEngine(cfg)

	now := time.Now()
	old := now.Add(-3 * time.Hour)
	ingest(t, engine, mkEvent(ads.EventImpression, "cr-old", "sess-1", old))
	require.Equal(int64(1), engine.EventsByHour()[old.Hour()])

	// The next batch prunes; the purged event drops out of the breakdown.
	ingest(t, engine, mkEvent(ads.EventImpression, "cr-new", "sess-1", now))

	byHour := engine.EventsByHour()
	require.Equal(int64(1), byHour[now.Hour()])
	var total int64
	for _, n := range byHour {
		total += n
	}
	require.Equal(int64(1), total)
}

func TestLowCTRAndLowRevenueAlerts(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Alerts.MinImpressions = 10
	engine := newTestEngine(cfg)

	now := time.Now()
	events := make([]*ads.AdEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, mkEvent(ads.EventImpression, "cr-1", "sess-1", now))
	}
	ingest(t, engine, events...)

	alerts := engine.Alerts()
	require.Len(alerts, 2)
	types := map[AlertType]bool{}
	for _, a := range alerts {
		require.Equal("cr-1", a.CreativeID)
		types[a.Type] = true
	}
	require.True(types[AlertLowCTR])
	require.True(types[AlertLowRevenue])
}

func TestAlertsGatedByMinImpressions(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Alerts.MinImpressions = 100
	engine := newTestEngine(cfg)

	ingest(t, engine, mkEvent(ads.EventImpression, "cr-1", "sess-1", time.Now()))
	require.Empty(engine.Alerts())
}

func TestHighCPMAlert(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Alerts.MinImpressions = 10
	cfg.Alerts.MaxCPM = 20.0
	engine := newTestEngine(cfg)

	now := time.Now()
	events := make([]*ads.AdEvent, 0, 11)
	for i := 0; i < 10; i++ {
		events = append(events, mkEvent(ads.EventImpression, "cr-1", "sess-1", now))
	}
	// $5 over 10 impressions is a $500 CPM.
	events = append(events, mkConversion("cr-1", "sess-1", now, 5.0))
	ingest(t, engine, events...)

	var found bool
	for _, a := range engine.Alerts() {
		if a.Type == AlertHighCPM {
			found = true
		}
	}
	require.True(found)
}

func TestAlertDeduplicationAndAcknowledge(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Alerts.MinImpressions = 5
	engine := newTestEngine(cfg)

	now := time.Now()
	impressions := func(n int) []*ads.AdEvent {
		out := make([]*ads.AdEvent, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, mkEvent(ads.EventImpression, "cr-1", "sess-1", now))
		}
		return out
	}

	ingest(t, engine, impressions(5)...)
	first := engine.Alerts()
	require.NotEmpty(first)

	// Same breach on the next batch is suppressed while unacknowledged.
	ingest(t, engine, impressions(5)...)
	require.Len(engine.Alerts(), len(first))

	require.ErrorIs(engine.AcknowledgeAlert("nope"), ErrAlertNotFound)
	for _, a := range first {
		require.NoError(engine.AcknowledgeAlert(a.ID))
	}
	require.Empty(engine.Alerts())

	// Acknowledged alerts no longer suppress: the condition re-raises.
	ingest(t, engine, impressions(5)...)
	require.Len(engine.Alerts(), len(first))
}

func TestRunDrainsStreamInBatches(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.IngestBatchSize = 2
	cfg.IngestFlushInterval = config.Duration(time.Hour) // force size-driven flushes
	engine := newTestEngine(cfg)

	stream := make(chan *ads.AdEvent, 8)
	now := time.Now()
	stream <- mkEvent(ads.EventImpression, "cr-1", "sess-1", now)
	stream <- mkEvent(ads.EventImpression, "cr-1", "sess-1", now)
	stream <- mkEvent(ads.EventClick, "cr-1", "sess-1", now)
	close(stream)

	done := make(chan struct{})
	go func() {
		engine.Run(context.Background(), stream)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after stream close")
	}

	m := engine.Metrics(nil)
	require.Equal(int64(2), m.Impressions)
	require.Equal(int64(1), m.Clicks)
}

func TestDestroyClearsAllState(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.Alerts.MinImpressions = 1
	engine := newTestEngine(cfg)
	engine.Start()

	ingest(t, engine, mkEvent(ads.EventImpression, "cr-1", "sess-1", time.Now()))
	engine.GenerateInsights()
	require.NotEmpty(engine.Alerts())

	engine.Destroy()

	require.Zero(engine.Metrics(nil).Impressions)
	require.Empty(engine.AggregatedMetrics(time.Hour))
	require.Empty(engine.Alerts())
	require.Empty(engine.Insights())
	require.Equal([24]int64{}, engine.EventsByHour())
}
