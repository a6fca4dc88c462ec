// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AdType is the creative format family.
type AdType string

const (
	TypeBanner       AdType = "banner"
	TypeNative       AdType = "native"
	TypeInterstitial AdType = "interstitial"
	TypeVideo        AdType = "video"
	TypeAudio        AdType = "audio"
)

// AdContent is the marketing copy carried by a creative.
type AdContent struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CTAText     string   `json:"cta_text,omitempty"`
	LandingURL  string   `json:"landing_url,omitempty"`
	Brand       string   `json:"brand"`
	MediaURLs   []string `json:"media_urls,omitempty"`
}

// Creative is one piece of ad content. Creatives are immutable after
// insertion except for removal.
type Creative struct {
	ID        string    `json:"id"`
	Type      AdType    `json:"type"`
	Format    string    `json:"format,omitempty"`
	Content   AdContent `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the creative is past its expiry at now.
func (c *Creative) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Text returns the lowercased title+description used for rule matching
// and relevance scoring.
func (c *Creative) Text() string {
	return strings.ToLower(c.Content.Title + " " + c.Content.Description)
}

// AdvertiserStatus is the advertiser account state.
type AdvertiserStatus string

const (
	AdvertiserPending     AdvertiserStatus = "pending"
	AdvertiserApproved    AdvertiserStatus = "approved"
	AdvertiserRejected    AdvertiserStatus = "rejected"
	AdvertiserSuspended   AdvertiserStatus = "suspended"
	AdvertiserUnderReview AdvertiserStatus = "under_review"
)

// Advertiser is a brand account. Creatives relate to it only through a
// normalized brand-name index maintained by the inventory store.
type Advertiser struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Domain       string           `json:"domain,omitempty"`
	Category     string           `json:"category,omitempty"`
	TrustScore   int              `json:"trust_score"` // 0-100
	Status       AdvertiserStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	LastReviewed time.Time        `json:"last_reviewed,omitempty"`
}

// CampaignType is the sales channel a campaign was booked through.
type CampaignType string

const (
	CampaignProgrammatic CampaignType = "programmatic"
	CampaignDirect       CampaignType = "direct"
	CampaignHouse        CampaignType = "house"
)

// CampaignStatus is the campaign lifecycle state.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Targeting is the criteria set attached to a campaign.
type Targeting struct {
	Interests  []string `json:"interests,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Behavioral []string `json:"behavioral,omitempty"`
}

// Campaign is a budgeted, time-bounded grouping of creatives.
type Campaign struct {
	ID           string          `json:"id"`
	AdvertiserID string          `json:"advertiser_id"`
	Name         string          `json:"name"`
	Type         CampaignType    `json:"type"`
	Status       CampaignStatus  `json:"status"`
	Budget       decimal.Decimal `json:"budget"`
	Spent        decimal.Decimal `json:"spent"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Targeting    Targeting       `json:"targeting,omitempty"`
}

// Active reports whether the campaign is live at now.
func (c *Campaign) Active(now time.Time) bool {
	return c.Status == CampaignActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Intent is the classified intent extracted from the conversation context.
type Intent struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ConversationStage describes how far along the conversation is.
type ConversationStage struct {
	Progress     float64 `json:"progress"`
	MessageCount int     `json:"message_count"`
}

// AdContext carries the contextual signals attached to every request and
// event by the upstream context-extraction component.
type AdContext struct {
	Topics     []string          `json:"topics,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Intent     Intent            `json:"intent,omitempty"`
	Sentiment  string            `json:"sentiment,omitempty"`
	Stage      ConversationStage `json:"stage,omitempty"`
	Engagement float64           `json:"engagement"` // 0-1
	Confidence float64           `json:"confidence"`
}

// WeightedInterest is a user interest category with a 0-1 weight.
type WeightedInterest struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// UserProfile is the optional per-user interest profile.
type UserProfile struct {
	Interests []WeightedInterest `json:"interests"`
}

// ConsentFlags holds per-purpose user consent.
type ConsentFlags struct {
	Advertising     bool `json:"advertising"`
	Analytics       bool `json:"analytics"`
	Personalization bool `json:"personalization"`
}

// ComplianceIssue is a single issue recorded against a compliance flag.
type ComplianceIssue struct {
	Severity    string `json:"severity"` // low/medium/high/critical
	Description string `json:"description,omitempty"`
	Resolved    bool   `json:"resolved"`
}

// ComplianceFlag is a regulatory compliance status supplied by the
// privacy/consent store.
type ComplianceFlag struct {
	Regulation string            `json:"regulation"`
	Compliant  bool              `json:"compliant"`
	Issues     []ComplianceIssue `json:"issues,omitempty"`
}

// PrivacySettings is the consent state attached to a request.
type PrivacySettings struct {
	Consent          ConsentFlags     `json:"consent"`
	ConsentTimestamp time.Time        `json:"consent_timestamp"`
	ComplianceFlags  []ComplianceFlag `json:"compliance_flags,omitempty"`
}

// DeviceInfo describes the requesting device.
type DeviceInfo struct {
	Type    string `json:"type,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// AdRequest is one ad-placement request.
type AdRequest struct {
	RequestID   string          `json:"request_id"`
	PlacementID string          `json:"placement_id,omitempty"`
	Context     AdContext       `json:"context"`
	Profile     *UserProfile    `json:"profile,omitempty"`
	Privacy     PrivacySettings `json:"privacy"`
	Device      DeviceInfo      `json:"device,omitempty"`
	SessionID   string          `json:"session_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ResponseMetadata is the auction outcome attached to a response.
type ResponseMetadata struct {
	ProcessingTime time.Duration   `json:"processing_time_ns"`
	TargetingScore float64         `json:"targeting_score"`
	AuctionID      string          `json:"auction_id"`
	BidPrice       decimal.Decimal `json:"bid_price"`
	Currency       string          `json:"currency,omitempty"`
	ImpressionURL  string          `json:"impression_url,omitempty"`
	ClickURL       string          `json:"click_url,omitempty"`
	ConversionURL  string          `json:"conversion_url,omitempty"`
}

// AdResponse is the serving result. The serving path never fails the
// caller: when nothing can be served the response carries the fallback ad.
type AdResponse struct {
	RequestID string           `json:"request_id"`
	Ads       []*Creative      `json:"ads"`
	Metadata  ResponseMetadata `json:"metadata"`
	Timestamp time.Time        `json:"timestamp"`
	TTL       time.Duration    `json:"ttl_ns"`
}

// EventType is the kind of performance signal.
type EventType string

const (
	EventImpression  EventType = "impression"
	EventClick       EventType = "click"
	EventConversion  EventType = "conversion"
	EventInteraction EventType = "interaction"
)

// AdEvent is one immutable performance event.
type AdEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	CreativeID string                 `json:"creative_id"`
	SessionID  string                 `json:"session_id"`
	UserID     string                 `json:"user_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]string      `json:"context,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Valid reports whether the event carries the mandatory fields. Invalid
// events are silently dropped by analytics ingestion.
func (e *AdEvent) Valid() bool {
	return e != nil &&
		e.ID != "" &&
		e.Type != "" &&
		e.CreativeID != "" &&
		e.SessionID != "" &&
		!e.Timestamp.IsZero()
}

// PerformanceMetrics is the additive counter set for one creative plus
// the derived fields recomputed on every update.
type PerformanceMetrics struct {
	CreativeID  string          `json:"creative_id"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`

	CTR             float64 `json:"ctr"`              // percent
	CPM             float64 `json:"cpm"`              // dollars per thousand impressions
	EngagementScore float64 `json:"engagement_score"` // 0-1
}
