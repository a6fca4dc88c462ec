// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adxyz/adserve/pkg/ads"
)

// InsightType classifies a generated insight.
type InsightType string

const (
	InsightTrend       InsightType = "trend"
	InsightAnomaly     InsightType = "anomaly"
	InsightOpportunity InsightType = "opportunity"
)

// Insight is a derived, ephemeral observation. The whole set is
// regenerated on each pass; there is no history merge.
type Insight struct {
	ID          string      `json:"id"`
	Type        InsightType `json:"type"`
	Description string      `json:"description"`
	Impact      string      `json:"impact"` // low/medium/high
	CreativeID  string      `json:"creative_id,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

const (
	trendThreshold      = 0.10
	trendHighImpact     = 0.25
	anomalyMinBuckets   = 5
	anomalyWindow       = 24
	anomalySigma        = 2.0
	opportunityMinCTR   = 2.0
	opportunityMinImpr  = 100
	opportunityMaxCount = 3
)

// GenerateInsights recomputes the insight set wholesale: a 24h CTR trend
// comparison, a z-score anomaly check on the latest aggregation bucket,
// and up to three high-CTR opportunity creatives.
func (e *Engine) GenerateInsights() []*Insight {
	now := time.Now()
	var out []*Insight

	if insight := e.trendInsight(now); insight != nil {
		out = append(out, insight)
	}
	if insight := e.anomalyInsight(); insight != nil {
		out = append(out, insight)
	}
	out = append(out, e.opportunityInsights()...)

	e.mu.Lock()
	e.insights = out
	e.mu.Unlock()

	e.log.Info("insights generated", "count", len(out))
	return out
}

// Insights returns the latest generated set.
func (e *Engine) Insights() []*Insight {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Insight(nil), e.insights...)
}

// trendInsight compares last-24h CTR against the prior 24h and reports
// relative changes above 10%.
func (e *Engine) trendInsight(now time.Time) *Insight {
	e.mu.RLock()
	recent := computeMetrics(e.events, &Filter{Start: now.Add(-24 * time.Hour), End: now})
	prior := computeMetrics(e.events, &Filter{Start: now.Add(-48 * time.Hour), End: now.Add(-24 * time.Hour)})
	e.mu.RUnlock()

	if prior.CTR == 0 {
		return nil
	}
	change := (recent.CTR - prior.CTR) / prior.CTR
	if math.Abs(change) <= trendThreshold {
		return nil
	}

	impact := "medium"
	if math.Abs(change) > trendHighImpact {
		impact = "high"
	}
	direction := "up"
	if change < 0 {
		direction = "down"
	}

	return &Insight{
		ID:   uuid.NewString(),
		Type: InsightTrend,
		Description: fmt.Sprintf("CTR is %s %.1f%% over the last 24h (%.2f%% vs %.2f%%)",
			direction, math.Abs(change)*100, recent.CTR, prior.CTR),
		Impact:      impact,
		GeneratedAt: time.Now(),
	}
}

// anomalyInsight z-scores the latest bucket's CTR against the mean and
// stddev of the preceding buckets. Requires at least 5 historical buckets.
func (e *Engine) anomalyInsight() *Insight {
	e.mu.RLock()
	buckets := make([]*Bucket, 0, len(e.buckets))
	for _, b := range e.buckets {
		buckets = append(buckets, b)
	}
	e.mu.RUnlock()

	if len(buckets) < anomalyMinBuckets+1 {
		return nil
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })

	latest := buckets[len(buckets)-1]
	history := buckets[:len(buckets)-1]
	if len(history) > anomalyWindow {
		history = history[len(history)-anomalyWindow:]
	}
	if len(history) < anomalyMinBuckets {
		return nil
	}

	mean, stddev := ctrStats(history)
	if stddev == 0 {
		return nil
	}
	z := (latest.CTR() - mean) / stddev
	if math.Abs(z) <= anomalySigma {
		return nil
	}

	return &Insight{
		ID:   uuid.NewString(),
		Type: InsightAnomaly,
		Description: fmt.Sprintf("latest bucket CTR %.2f%% deviates %.1f sigma from the %.2f%% mean",
			latest.CTR(), z, mean),
		Impact:      "high",
		GeneratedAt: time.Now(),
	}
}

func ctrStats(buckets []*Bucket) (mean, stddev float64) {
	for _, b := range buckets {
		mean += b.CTR()
	}
	mean /= float64(len(buckets))

	var variance float64
	for _, b := range buckets {
		d := b.CTR() - mean
		variance += d * d
	}
	variance /= float64(len(buckets))
	return mean, math.Sqrt(variance)
}

// opportunityInsights surfaces up to three creatives with CTR above 2%
// and more than 100 impressions.
func (e *Engine) opportunityInsights() []*Insight {
	e.mu.RLock()
	creatives := make(map[string]struct{})
	for _, event := range e.events {
		creatives[event.CreativeID] = struct{}{}
	}

	type perf struct {
		id string
		m  ads.PerformanceMetrics
	}
	var candidates []perf
	for id := range creatives {
		m := computeMetrics(e.events, &Filter{CreativeIDs: []string{id}})
		if m.CTR > opportunityMinCTR && m.Impressions > opportunityMinImpr {
			candidates = append(candidates, perf{id: id, m: m})
		}
	}
	e.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].m.CTR != candidates[j].m.CTR {
			return candidates[i].m.CTR > candidates[j].m.CTR
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > opportunityMaxCount {
		candidates = candidates[:opportunityMaxCount]
	}

	out := make([]*Insight, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &Insight{
			ID:   uuid.NewString(),
			Type: InsightOpportunity,
			Description: fmt.Sprintf("creative %s is outperforming: CTR %.2f%% over %d impressions",
				c.id, c.m.CTR, c.m.Impressions),
			Impact:      "medium",
			CreativeID:  c.id,
			GeneratedAt: time.Now(),
		})
	}
	return out
}
