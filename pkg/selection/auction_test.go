// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package selection

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/adserve/pkg/ads"
)

func creativeWithText(id, title string, adType ads.AdType) *ads.Creative {
	return &ads.Creative{
		ID:      id,
		Type:    adType,
		Content: ads.AdContent{Title: title, Description: "everyday essentials"},
	}
}

func TestTargetingScoreComponents(t *testing.T) {
	require := require.New(t)
	creative := creativeWithText("cr-1", "running shoes for athletes", ads.TypeBanner)

	// Base only: no keywords, no intent, no engagement.
	req := &ads.AdRequest{}
	require.InDelta(0.5, targetingScore(req, creative), 1e-9)

	// Full keyword overlap adds 0.3.
	req = &ads.AdRequest{Context: ads.AdContext{Keywords: []string{"shoes", "athletes"}}}
	require.InDelta(0.8, targetingScore(req, creative), 1e-9)

	// Commercial intent adds 0.2 plus 0.1 x confidence.
	req = &ads.AdRequest{Context: ads.AdContext{
		Intent: ads.Intent{Category: "commercial", Confidence: 1.0},
	}}
	require.InDelta(0.8, targetingScore(req, creative), 1e-9)

	// Informational intent adds only the confidence term.
	req = &ads.AdRequest{Context: ads.AdContext{
		Intent: ads.Intent{Category: "informational", Confidence: 1.0},
	}}
	require.InDelta(0.6, targetingScore(req, creative), 1e-9)

	// Engagement adds 0.2 x score.
	req = &ads.AdRequest{Context: ads.AdContext{Engagement: 0.5}}
	require.InDelta(0.6, targetingScore(req, creative), 1e-9)

	// Score caps at 1.0.
	req = &ads.AdRequest{
		Context: ads.AdContext{
			Keywords:   []string{"shoes"},
			Intent:     ads.Intent{Category: "transactional", Confidence: 1.0},
			Engagement: 1.0,
		},
		Profile: &ads.UserProfile{Interests: []ads.WeightedInterest{{Category: "shoes", Weight: 1.0}}},
	}
	require.InDelta(1.0, targetingScore(req, creative), 1e-9)
}

func TestProfileBoostCapsAtPointTwo(t *testing.T) {
	require := require.New(t)
	creative := creativeWithText("cr-1", "running shoes and fitness gear", ads.TypeBanner)

	profile := &ads.UserProfile{Interests: []ads.WeightedInterest{
		{Category: "shoes", Weight: 1.0},
		{Category: "fitness", Weight: 1.0},
	}}
	require.InDelta(0.2, profileBoost(profile, creative), 1e-9)

	half := &ads.UserProfile{Interests: []ads.WeightedInterest{{Category: "shoes", Weight: 0.5}}}
	require.InDelta(0.1, profileBoost(half, creative), 1e-9)

	require.Zero(profileBoost(nil, creative))
}

func TestBidPriceMultipliers(t *testing.T) {
	tests := []struct {
		adType ads.AdType
		want   string
	}{
		// 2.0 x multiplier x (0.5 + 0.5x1.5) = 2.0 x multiplier x 1.25
		{ads.TypeVideo, "3.75"},
		{ads.TypeInterstitial, "3.25"},
		{ads.TypeNative, "3"},
		{ads.TypeBanner, "2.5"},
		{ads.TypeAudio, "2.5"},
	}

	for _, tt := range tests {
		t.Run(string(tt.adType), func(t *testing.T) {
			require := require.New(t)
			price := bidPrice(tt.adType, 0.5)
			require.True(price.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", price.String(), tt.want)
		})
	}
}

func TestRunAuctionWinnerAndOrdering(t *testing.T) {
	require := require.New(t)

	shortlist := []*candidate{
		{creative: creativeWithText("cr-banner", "plain offer", ads.TypeBanner)},
		{creative: creativeWithText("cr-video", "plain offer", ads.TypeVideo)},
	}
	req := &ads.AdRequest{Context: ads.AdContext{Engagement: 0.5}}

	outcome := runAuction(shortlist, req)
	require.NotNil(outcome.Winner)
	require.Equal("cr-video", outcome.Winner.Creative.ID)
	require.Len(outcome.Bids, 2)
	require.True(outcome.Bids[0].AuctionScore.GreaterThanOrEqual(outcome.Bids[1].AuctionScore))
	require.NotEmpty(outcome.AuctionID)

	winner := outcome.Winner
	expected := winner.BidPrice.Mul(decimal.NewFromFloat(winner.TargetingScore))
	require.True(winner.AuctionScore.Equal(expected))
}
