// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/moderation"
	"github.com/adxyz/adserve/pkg/selection"
)

var (
	programmaticBaseCPM = decimal.NewFromFloat(2.50)
	programmaticFloor   = decimal.NewFromFloat(0.50)
)

const (
	houseAdvertiserName = "House Ads"
	houseTrustScore     = 100
	directTrustScore    = 95
)

// BidRequest is an incoming programmatic bid opportunity.
type BidRequest struct {
	BidID       string              `json:"bid_id"`
	PlacementID string              `json:"placement_id,omitempty"`
	Context     ads.AdContext       `json:"context"`
	Privacy     ads.PrivacySettings `json:"privacy"`
	SessionID   string              `json:"session_id"`
	Timestamp   time.Time           `json:"timestamp"`
}

// BidResult is the programmatic bid outcome.
type BidResult struct {
	Success    bool            `json:"success"`
	DealID     string          `json:"deal_id,omitempty"`
	CreativeID string          `json:"creative_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Reason     string          `json:"reason,omitempty"`
}

// DirectDeal describes a directly sold campaign to onboard.
type DirectDeal struct {
	AdvertiserName     string          `json:"advertiser_name"`
	AdvertiserDomain   string          `json:"advertiser_domain,omitempty"`
	AdvertiserCategory string          `json:"advertiser_category,omitempty"`
	CampaignName       string          `json:"campaign_name"`
	Budget             decimal.Decimal `json:"budget"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	Targeting          ads.Targeting   `json:"targeting,omitempty"`
	Creatives          []*ads.Creative `json:"creatives"`
}

// HouseAdConfig describes an internal house campaign.
type HouseAdConfig struct {
	CampaignName string          `json:"campaign_name"`
	Creatives    []*ads.Creative `json:"creatives"`
}

// Integration onboards programmatic bids, direct deals and house
// campaigns into the inventory store. Direct-channel origin never
// bypasses moderation; house ads are moderated and then force-approved.
type Integration struct {
	store      *inventory.Store
	moderation *moderation.Engine
	selection  *selection.Engine
	budgets    *BudgetLedger
	log        log.Logger
}

// NewIntegration creates the sales integration layer.
func NewIntegration(store *inventory.Store, mod *moderation.Engine, sel *selection.Engine, logger log.Logger) *Integration {
	return &Integration{
		store:      store,
		moderation: mod,
		selection:  sel,
		budgets:    NewBudgetLedger(logger),
		log:        logger,
	}
}

// Budgets exposes the campaign budget ledger.
func (i *Integration) Budgets() *BudgetLedger {
	return i.budgets
}

// HandleProgrammaticBid runs eligibility for the placement/context/privacy
// triple and prices the top-ranked candidate. An empty candidate set is a
// failure result, not an error.
func (i *Integration) HandleProgrammaticBid(ctx context.Context, bid *BidRequest) (*BidResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &ads.AdRequest{
		RequestID:   bid.BidID,
		PlacementID: bid.PlacementID,
		Context:     bid.Context,
		Privacy:     bid.Privacy,
		SessionID:   bid.SessionID,
		Timestamp:   bid.Timestamp,
	}

	creative, relevance, ok := i.selection.TopCandidate(req)
	if !ok {
		return &BidResult{Success: false, Reason: "no eligible inventory"}, nil
	}

	price := programmaticBaseCPM.
		Mul(decimal.NewFromFloat(1 + relevance)).
		Mul(decimal.NewFromFloat(1 + bid.Context.Engagement*0.5))
	if price.LessThan(programmaticFloor) {
		price = programmaticFloor
	}

	result := &BidResult{
		Success:    true,
		DealID:     "deal-" + uuid.NewString(),
		CreativeID: creative.ID,
		Price:      price,
	}

	i.log.Info("programmatic bid priced",
		"bid", bid.BidID,
		"creative", creative.ID,
		"price", price.String())

	return result, nil
}

// CreateDirectCampaign upserts the advertiser, creates a direct campaign,
// inserts its creatives and runs moderation on each one.
func (i *Integration) CreateDirectCampaign(deal *DirectDeal) (*ads.Campaign, error) {
	if deal.AdvertiserName == "" {
		return nil, fmt.Errorf("direct deal missing advertiser name")
	}

	advertiser := i.store.AdvertiserByBrand(deal.AdvertiserName)
	if advertiser == nil {
		advertiser = &ads.Advertiser{
			ID:         uuid.NewString(),
			Name:       deal.AdvertiserName,
			Domain:     deal.AdvertiserDomain,
			Category:   deal.AdvertiserCategory,
			TrustScore: directTrustScore,
			Status:     ads.AdvertiserApproved,
			CreatedAt:  time.Now(),
		}
		i.store.AddAdvertiser(advertiser)
	}

	campaign := &ads.Campaign{
		ID:           uuid.NewString(),
		AdvertiserID: advertiser.ID,
		Name:         deal.CampaignName,
		Type:         ads.CampaignDirect,
		Status:       ads.CampaignActive,
		Budget:       deal.Budget,
		Spent:        decimal.Zero,
		StartDate:    deal.StartDate,
		EndDate:      deal.EndDate,
		Targeting:    deal.Targeting,
	}
	if err := i.store.CreateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("create direct campaign: %w", err)
	}
	i.budgets.SetBudget(campaign.ID, deal.Budget)

	for _, creative := range deal.Creatives {
		i.addCreative(creative, advertiser.Name)
		if _, err := i.moderation.ModerateContent(creative.ID, "sales-integration"); err != nil {
			return nil, fmt.Errorf("moderate creative %s: %w", creative.ID, err)
		}
	}

	i.log.Info("direct campaign created",
		"campaign", campaign.ID,
		"advertiser", advertiser.ID,
		"creatives", len(deal.Creatives))

	return campaign, nil
}

// CreateHouseAdCampaign creates the internal advertiser if needed, a
// zero-budget one-year house campaign, and force-approves its creatives
// after moderation runs.
func (i *Integration) CreateHouseAdCampaign(cfg *HouseAdConfig) (*ads.Campaign, error) {
	advertiser := i.store.AdvertiserByBrand(houseAdvertiserName)
	if advertiser == nil {
		advertiser = &ads.Advertiser{
			ID:         uuid.NewString(),
			Name:       houseAdvertiserName,
			Domain:     "internal",
			Category:   "house",
			TrustScore: houseTrustScore,
			Status:     ads.AdvertiserApproved,
			CreatedAt:  time.Now(),
		}
		i.store.AddAdvertiser(advertiser)
	}

	now := time.Now()
	campaign := &ads.Campaign{
		ID:           uuid.NewString(),
		AdvertiserID: advertiser.ID,
		Name:         cfg.CampaignName,
		Type:         ads.CampaignHouse,
		Status:       ads.CampaignActive,
		Budget:       decimal.Zero,
		Spent:        decimal.Zero,
		StartDate:    now,
		EndDate:      now.AddDate(1, 0, 0),
	}
	if err := i.store.CreateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("create house campaign: %w", err)
	}

	for _, creative := range cfg.Creatives {
		i.addCreative(creative, houseAdvertiserName)
		if _, err := i.moderation.ModerateContent(creative.ID, "sales-integration"); err != nil {
			return nil, fmt.Errorf("moderate creative %s: %w", creative.ID, err)
		}
		if err := i.moderation.ApproveAd(creative.ID, "house-override"); err != nil {
			return nil, fmt.Errorf("approve house creative %s: %w", creative.ID, err)
		}
	}

	i.log.Info("house campaign created",
		"campaign", campaign.ID,
		"creatives", len(cfg.Creatives))

	return campaign, nil
}

// RecordSpend bills spend against a campaign, updating both the ledger
// and the stored campaign record.
func (i *Integration) RecordSpend(campaignID string, amount decimal.Decimal) error {
	if _, err := i.budgets.RecordSpend(campaignID, amount); err != nil {
		return err
	}

	return i.store.AddCampaignSpend(campaignID, amount)
}

func (i *Integration) addCreative(creative *ads.Creative, brand string) {
	if creative.ID == "" {
		creative.ID = uuid.NewString()
	}
	if creative.Content.Brand == "" {
		creative.Content.Brand = brand
	}
	if creative.CreatedAt.IsZero() {
		creative.CreatedAt = time.Now()
	}
	if creative.ExpiresAt.IsZero() {
		creative.ExpiresAt = time.Now().AddDate(0, 3, 0)
	}
	i.store.AddCreative(creative)
}
