// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package selection

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
)

var baseCPM = decimal.NewFromFloat(2.0)

// Bid is one candidate's priced entry in the auction.
type Bid struct {
	Creative       *ads.Creative
	TargetingScore float64
	BidPrice       decimal.Decimal
	AuctionScore   decimal.Decimal
}

// Outcome is the result of one auction round.
type Outcome struct {
	AuctionID string
	Winner    *Bid
	Bids      []*Bid
}

// runAuction prices every shortlisted candidate and ranks by auction
// score. Ties resolve to the lowest creative id so repeated runs over the
// same shortlist pick the same winner.
func runAuction(shortlist []*candidate, req *ads.AdRequest) *Outcome {
	bids := make([]*Bid, len(shortlist))
	for i, c := range shortlist {
		ts := targetingScore(req, c.creative)
		price := bidPrice(c.creative.Type, ts)
		bids[i] = &Bid{
			Creative:       c.creative,
			TargetingScore: ts,
			BidPrice:       price,
			AuctionScore:   price.Mul(decimal.NewFromFloat(ts)),
		}
	}

	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].AuctionScore.Equal(bids[j].AuctionScore) {
			return bids[i].AuctionScore.GreaterThan(bids[j].AuctionScore)
		}
		return bids[i].Creative.ID < bids[j].Creative.ID
	})

	return &Outcome{
		AuctionID: uuid.NewString(),
		Winner:    bids[0],
		Bids:      bids,
	}
}

// targetingScore estimates 0-1 relevance from keyword overlap, intent,
// engagement and the optional user profile.
func targetingScore(req *ads.AdRequest, creative *ads.Creative) float64 {
	score := 0.5

	score += 0.3 * keywordOverlap(req.Context, creative)

	switch req.Context.Intent.Category {
	case "commercial", "transactional":
		score += 0.2
	}
	score += 0.1 * req.Context.Intent.Confidence
	score += 0.2 * req.Context.Engagement
	score += profileBoost(req.Profile, creative)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// profileBoost adds up to 0.2 for weighted user interests that match the
// creative text.
func profileBoost(profile *ads.UserProfile, creative *ads.Creative) float64 {
	if profile == nil {
		return 0
	}
	text := creative.Text()
	boost := 0.0
	for _, interest := range profile.Interests {
		if interest.Category == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(interest.Category)) {
			boost += 0.2 * interest.Weight
		}
	}
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}

// bidPrice prices a candidate: base CPM times a type multiplier times a
// targeting factor in [0.5, 2.0].
func bidPrice(adType ads.AdType, targeting float64) decimal.Decimal {
	multiplier := decimal.NewFromInt(1)
	switch adType {
	case ads.TypeVideo:
		multiplier = decimal.NewFromFloat(1.5)
	case ads.TypeInterstitial:
		multiplier = decimal.NewFromFloat(1.3)
	case ads.TypeNative:
		multiplier = decimal.NewFromFloat(1.2)
	}
	factor := decimal.NewFromFloat(0.5 + targeting*1.5)
	return baseCPM.Mul(multiplier).Mul(factor)
}
