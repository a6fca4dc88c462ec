// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inventory

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/log"
)

var (
	ErrCreativeNotFound   = errors.New("creative not found")
	ErrAdvertiserNotFound = errors.New("advertiser not found")
	ErrCampaignNotFound   = errors.New("campaign not found")
)

// Store owns creative, advertiser and campaign records plus the brand
// allow/deny lists. All lookups by brand are case-insensitive. Adding a
// creative never implies approval; a creative stays ineligible until a
// moderation result marks it approved.
//
// Records handed out by lookups are never written again: status and
// spend updates swap fresh copies into the maps, so callers may read a
// returned pointer without holding the store lock.
type Store struct {
	mu sync.RWMutex

	creatives   map[string]*ads.Creative
	advertisers map[string]*ads.Advertiser
	campaigns   map[string]*ads.Campaign

	whitelist         map[string]struct{}
	blacklist         map[string]struct{}
	categoryBlacklist map[string]struct{}

	// brandIndex maps normalized brand name to advertiser id. On a
	// collision the first writer wins; later registrations are ignored
	// for lookups and logged.
	brandIndex map[string]string

	log log.Logger
}

// NewStore creates an empty inventory store.
func NewStore(logger log.Logger) *Store {
	return &Store{
		creatives:         make(map[string]*ads.Creative),
		advertisers:       make(map[string]*ads.Advertiser),
		campaigns:         make(map[string]*ads.Campaign),
		whitelist:         make(map[string]struct{}),
		blacklist:         make(map[string]struct{}),
		categoryBlacklist: make(map[string]struct{}),
		brandIndex:        make(map[string]string),
		log:               logger,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AddCreative inserts a creative.
func (s *Store) AddCreative(c *ads.Creative) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creatives[c.ID] = c
	s.log.Debug("creative added", "creative", c.ID, "brand", c.Content.Brand)
}

// RemoveCreative deletes a creative by id.
func (s *Store) RemoveCreative(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creatives[id]; !ok {
		return ErrCreativeNotFound
	}
	delete(s.creatives, id)
	return nil
}

// Creative returns a creative by id.
func (s *Store) Creative(id string) (*ads.Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creatives[id]
	if !ok {
		return nil, ErrCreativeNotFound
	}
	return c, nil
}

// Creatives returns all creatives.
func (s *Store) Creatives() []*ads.Creative {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ads.Creative, 0, len(s.creatives))
	for _, c := range s.creatives {
		out = append(out, c)
	}
	return out
}

// AddAdvertiser inserts an advertiser and registers its brand name in the
// brand index.
func (s *Store) AddAdvertiser(a *ads.Advertiser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advertisers[a.ID] = a

	brand := normalize(a.Name)
	if prev, ok := s.brandIndex[brand]; ok && prev != a.ID {
		// First registration keeps the index entry.
		s.log.Warn("brand name collision, keeping existing index entry",
			"brand", brand, "existing", prev, "ignored", a.ID)
		return
	}
	s.brandIndex[brand] = a.ID
}

// UpdateAdvertiserStatus transitions an advertiser's account status.
func (s *Store) UpdateAdvertiserStatus(id string, status ads.AdvertiserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.advertisers[id]
	if !ok {
		return ErrAdvertiserNotFound
	}
	updated := *a
	updated.Status = status
	updated.LastReviewed = time.Now()
	s.advertisers[id] = &updated
	return nil
}

// Advertiser returns an advertiser by id.
func (s *Store) Advertiser(id string) (*ads.Advertiser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.advertisers[id]
	if !ok {
		return nil, ErrAdvertiserNotFound
	}
	return a, nil
}

// AdvertiserByBrand resolves an advertiser through the normalized brand
// index. Returns nil when the brand is unknown.
func (s *Store) AdvertiserByBrand(brand string) *ads.Advertiser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.brandIndex[normalize(brand)]
	if !ok {
		return nil
	}
	return s.advertisers[id]
}

// Advertisers returns advertisers, optionally filtered by status.
func (s *Store) Advertisers(status ads.AdvertiserStatus) []*ads.Advertiser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ads.Advertiser, 0, len(s.advertisers))
	for _, a := range s.advertisers {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CreateCampaign inserts a campaign. The advertiser must exist.
func (s *Store) CreateCampaign(c *ads.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.advertisers[c.AdvertiserID]; !ok {
		return ErrAdvertiserNotFound
	}
	s.campaigns[c.ID] = c
	return nil
}

// UpdateCampaign replaces a campaign record.
func (s *Store) UpdateCampaign(c *ads.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; !ok {
		return ErrCampaignNotFound
	}
	s.campaigns[c.ID] = c
	return nil
}

// AddCampaignSpend adds amount to a campaign's spent total, swapping a
// fresh record into the map.
func (s *Store) AddCampaignSpend(id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return ErrCampaignNotFound
	}
	updated := *c
	updated.Spent = c.Spent.Add(amount)
	s.campaigns[id] = &updated
	return nil
}

// Campaign returns a campaign by id.
func (s *Store) Campaign(id string) (*ads.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// Campaigns lists campaigns, optionally by advertiser and/or active-only.
func (s *Store) Campaigns(advertiserID string, activeOnly bool) []*ads.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]*ads.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		if advertiserID != "" && c.AdvertiserID != advertiserID {
			continue
		}
		if activeOnly && !c.Active(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// WhitelistBrand adds a brand to the whitelist. A non-empty whitelist
// restricts selection to whitelisted brands.
func (s *Store) WhitelistBrand(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[normalize(brand)] = struct{}{}
}

// UnwhitelistBrand removes a brand from the whitelist.
func (s *Store) UnwhitelistBrand(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, normalize(brand))
}

// BlacklistBrand adds a brand to the blacklist.
func (s *Store) BlacklistBrand(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[normalize(brand)] = struct{}{}
}

// UnblacklistBrand removes a brand from the blacklist.
func (s *Store) UnblacklistBrand(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, normalize(brand))
}

// BlacklistCategory adds an advertiser category to the category blacklist.
func (s *Store) BlacklistCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoryBlacklist[normalize(category)] = struct{}{}
}

// UnblacklistCategory removes a category from the category blacklist.
func (s *Store) UnblacklistCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categoryBlacklist, normalize(category))
}

// BrandBlacklisted reports blacklist membership.
func (s *Store) BrandBlacklisted(brand string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[normalize(brand)]
	return ok
}

// BrandWhitelisted reports whitelist membership.
func (s *Store) BrandWhitelisted(brand string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[normalize(brand)]
	return ok
}

// WhitelistEmpty reports whether no whitelist restriction applies.
func (s *Store) WhitelistEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.whitelist) == 0
}

// CategoryBlacklisted reports category blacklist membership.
func (s *Store) CategoryBlacklisted(category string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.categoryBlacklist[normalize(category)]
	return ok
}
