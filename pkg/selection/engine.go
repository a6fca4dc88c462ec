// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package selection

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metrics"
	"github.com/adxyz/adserve/pkg/moderation"
)

const (
	// FallbackCreativeID is the id of the guaranteed default ad.
	FallbackCreativeID = "fallback-ad"
	// FallbackAuctionID marks responses produced without an auction.
	FallbackAuctionID = "fallback"

	fallbackTTL = 60 * time.Second
	responseTTL = 300 * time.Second

	consentMaxAge = 365 * 24 * time.Hour
)

// Options tunes the selection engine.
type Options struct {
	// ShortlistSize bounds the number of candidates entering the auction.
	ShortlistSize int
	// FrequencyCap is the per-session serve limit per creative; zero
	// disables capping.
	FrequencyCap int
}

// Engine answers ad-placement requests. The serving path never fails the
// caller: privacy blocks and empty inventory degrade to the fallback
// response.
type Engine struct {
	store      *inventory.Store
	moderation *moderation.Engine
	freq       *FrequencyCapper
	opts       Options
	log        log.Logger
}

// NewEngine creates a selection engine over the given stores.
func NewEngine(store *inventory.Store, mod *moderation.Engine, opts Options, logger log.Logger) *Engine {
	if opts.ShortlistSize <= 0 {
		opts.ShortlistSize = 10
	}
	return &Engine{
		store:      store,
		moderation: mod,
		freq:       NewFrequencyCapper(opts.FrequencyCap),
		opts:       opts,
		log:        logger,
	}
}

// ResetSessionFrequency clears a session's serve counters so its
// frequency caps start over. Explicit admin action only.
func (e *Engine) ResetSessionFrequency(sessionID string) {
	e.freq.ResetSession(sessionID)
	e.log.Info("session frequency reset", "session", sessionID)
}

// candidate is an eligible creative with its scoring inputs.
type candidate struct {
	creative  *ads.Creative
	modScore  int
	trust     int
	relevance float64
}

// RequestAd runs the full serving pipeline: privacy gate, eligibility
// filter, shortlist ranking, single-round auction, response assembly.
// The only returned error is context cancellation.
func (e *Engine) RequestAd(ctx context.Context, req *ads.AdRequest) (*ads.AdResponse, error) {
	start := time.Now()
	metrics.AdRequests.Inc()

	if blocked, reason := privacyBlocked(req.Privacy, start); blocked {
		e.log.Debug("privacy gate blocked request", "request", req.RequestID, "reason", reason)
		return e.fallback(req, start, reason), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := e.eligible(req, start)
	if len(candidates) == 0 {
		return e.fallback(req, start, "no ads available"), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shortlist := e.shortlist(candidates, req)
	outcome := runAuction(shortlist, req)

	winner := outcome.Winner
	e.freq.RecordServe(req.SessionID, winner.Creative.ID)
	metrics.AdsServed.Inc()

	now := time.Now()
	resp := &ads.AdResponse{
		RequestID: req.RequestID,
		Ads:       []*ads.Creative{winner.Creative},
		Metadata: ads.ResponseMetadata{
			ProcessingTime: now.Sub(start),
			TargetingScore: winner.TargetingScore,
			AuctionID:      outcome.AuctionID,
			BidPrice:       winner.BidPrice,
			Currency:       "USD",
			ImpressionURL:  trackingURL("impression", winner.Creative.ID, req.SessionID, now),
			ClickURL:       trackingURL("click", winner.Creative.ID, req.SessionID, now),
			ConversionURL:  trackingURL("conversion", winner.Creative.ID, req.SessionID, now),
		},
		Timestamp: now,
		TTL:       responseTTL,
	}

	e.log.Debug("ad served",
		"request", req.RequestID,
		"creative", winner.Creative.ID,
		"score", winner.TargetingScore,
		"price", winner.BidPrice.String(),
		"candidates", len(candidates))

	return resp, nil
}

// TopCandidate runs the privacy gate and eligibility filter for a
// request and returns the highest-ranked candidate with its relevance
// score. Used by programmatic bid handling, which prices candidates
// itself instead of running the auction.
func (e *Engine) TopCandidate(req *ads.AdRequest) (*ads.Creative, float64, bool) {
	now := time.Now()
	if blocked, _ := privacyBlocked(req.Privacy, now); blocked {
		return nil, 0, false
	}
	candidates := e.eligible(req, now)
	if len(candidates) == 0 {
		return nil, 0, false
	}
	ranked := e.shortlist(candidates, req)
	top := ranked[0]
	return top.creative, top.relevance, true
}

// privacyBlocked applies the privacy gate: advertising consent must be
// present, no older than one year, and no compliance flag may carry an
// unresolved critical issue.
func privacyBlocked(p ads.PrivacySettings, now time.Time) (bool, string) {
	if !p.Consent.Advertising {
		return true, "no advertising consent"
	}
	if now.Sub(p.ConsentTimestamp) > consentMaxAge {
		return true, "consent expired"
	}
	for _, flag := range p.ComplianceFlags {
		if flag.Compliant {
			continue
		}
		for _, issue := range flag.Issues {
			if issue.Severity == "critical" && !issue.Resolved {
				return true, fmt.Sprintf("non-compliant with %s", flag.Regulation)
			}
		}
	}
	return false, ""
}

// eligible filters the inventory: not expired, moderation approved, brand
// not blacklisted, whitelist rule, advertiser category not blacklisted,
// session frequency cap not exhausted. Context relevance is advisory and
// never excludes a candidate.
func (e *Engine) eligible(req *ads.AdRequest, now time.Time) []*candidate {
	var out []*candidate
	for _, creative := range e.store.Creatives() {
		if creative.Expired(now) {
			continue
		}
		result := e.moderation.Result(creative.ID)
		if result == nil || !result.Approved {
			continue
		}
		brand := creative.Content.Brand
		if e.store.BrandBlacklisted(brand) {
			continue
		}
		if !e.store.WhitelistEmpty() && !e.store.BrandWhitelisted(brand) {
			continue
		}
		trust := 0
		if adv := e.store.AdvertiserByBrand(brand); adv != nil {
			if e.store.CategoryBlacklisted(adv.Category) {
				continue
			}
			trust = adv.TrustScore
		}
		if !e.freq.Allowed(req.SessionID, creative.ID) {
			continue
		}
		out = append(out, &candidate{
			creative:  creative,
			modScore:  result.SafetyScore,
			trust:     trust,
			relevance: keywordOverlap(req.Context, creative),
		})
	}
	return out
}

// shortlist ranks candidates by the comprehensive score and keeps the top
// N to bound auction size.
func (e *Engine) shortlist(candidates []*candidate, req *ads.AdRequest) []*candidate {
	type scored struct {
		c     *candidate
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		score := 0.5 +
			0.4*c.relevance +
			0.3*(float64(c.modScore)/100) +
			0.2*(float64(c.trust)/100) +
			0.1*req.Context.Engagement
		ranked[i] = scored{c: c, score: score}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].c.creative.ID < ranked[j].c.creative.ID
	})

	n := e.opts.ShortlistSize
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]*candidate, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].c
	}
	return out
}

// fallback builds the guaranteed default response.
func (e *Engine) fallback(req *ads.AdRequest, start time.Time, reason string) *ads.AdResponse {
	metrics.Fallbacks.Inc()
	now := time.Now()
	return &ads.AdResponse{
		RequestID: req.RequestID,
		Ads:       []*ads.Creative{fallbackCreative(now)},
		Metadata: ads.ResponseMetadata{
			ProcessingTime: now.Sub(start),
			AuctionID:      FallbackAuctionID,
		},
		Timestamp: now,
		TTL:       fallbackTTL,
	}
}

func fallbackCreative(now time.Time) *ads.Creative {
	return &ads.Creative{
		ID:     FallbackCreativeID,
		Type:   ads.TypeBanner,
		Format: "text",
		Content: ads.AdContent{
			Title:       "Discover more",
			Description: "Explore our platform",
			CTAText:     "Learn more",
			Brand:       "house",
		},
		CreatedAt: now,
		ExpiresAt: now.Add(fallbackTTL),
	}
}

// keywordOverlap is the ratio of context topic keywords appearing in the
// creative text.
func keywordOverlap(ctx ads.AdContext, creative *ads.Creative) float64 {
	keywords := append(append([]string{}, ctx.Keywords...), ctx.Topics...)
	if len(keywords) == 0 {
		return 0
	}
	text := creative.Text()
	matched := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func trackingURL(event, creativeID, sessionID string, ts time.Time) string {
	q := url.Values{}
	q.Set("creative", creativeID)
	q.Set("session", sessionID)
	q.Set("ts", fmt.Sprintf("%d", ts.Unix()))
	return fmt.Sprintf("/v1/track/%s?%s", event, q.Encode())
}
