// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package moderation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/log"
)

var (
	ErrRuleNotFound       = errors.New("moderation rule not found")
	ErrNoModerationResult = errors.New("no moderation result for creative")
)

// RuleType classifies what a moderation rule polices.
type RuleType string

const (
	RuleKeywordBlacklist     RuleType = "keyword_blacklist"
	RuleContentCategory      RuleType = "content_category"
	RuleBrandSafety          RuleType = "brand_safety"
	RuleRegulatoryCompliance RuleType = "regulatory_compliance"
	RuleCustomFilter         RuleType = "custom_filter"
)

// Severity grades a fired rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// deduction is the fixed safety-score cost per fired severity.
func (s Severity) deduction() int {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 25
	case SeverityHigh:
		return 50
	case SeverityCritical:
		return 80
	}
	return 0
}

// RuleAction is what a fired rule does to the verdict.
type RuleAction string

const (
	ActionBlock         RuleAction = "block"
	ActionFlag          RuleAction = "flag"
	ActionRequireReview RuleAction = "require_review"
	ActionAutoApprove   RuleAction = "auto_approve"
)

// Rule is one admin-managed moderation rule. Pattern is matched as a
// case-insensitive regular expression when it compiles as one, otherwise
// as a literal case-insensitive substring.
type Rule struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     RuleType   `json:"type"`
	Pattern  string     `json:"pattern"`
	Severity Severity   `json:"severity"`
	Action   RuleAction `json:"action"`
	Enabled  bool       `json:"enabled"`

	re *regexp.Regexp
}

func (r *Rule) compile() {
	if re, err := regexp.Compile("(?i)" + r.Pattern); err == nil {
		r.re = re
	} else {
		r.re = nil
	}
}

// matches tests the rule pattern against lowercased creative text.
func (r *Rule) matches(text string) bool {
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, strings.ToLower(r.Pattern))
}

// Flag is one fired rule recorded on a result.
type Flag struct {
	RuleID     string   `json:"rule_id"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
}

// Result is the verdict for one creative. Each moderation run fully
// overwrites the previous result; approved=false is a one-way latch
// within a run that no later non-blocking rule can clear.
type Result struct {
	CreativeID     string    `json:"creative_id"`
	Approved       bool      `json:"approved"`
	SafetyScore    int       `json:"safety_score"` // 0-100
	Flags          []Flag    `json:"flags,omitempty"`
	ReviewRequired bool      `json:"review_required"`
	BlockReasons   []string  `json:"block_reasons,omitempty"`
	ModeratedAt    time.Time `json:"moderated_at"`
	ModeratedBy    string    `json:"moderated_by"`
}

// clone returns a deep copy so finalization can swap in a fresh result
// instead of writing through a pointer concurrent readers may hold.
func (r *Result) clone() *Result {
	c := *r
	c.Flags = append([]Flag(nil), r.Flags...)
	c.BlockReasons = append([]string(nil), r.BlockReasons...)
	return &c
}

// unsafeKeywords is the internal brand-safety vocabulary. Brand-safety
// rules scan it in addition to their own pattern, and the independent
// brand-safety pass scans it for every creative.
var unsafeKeywords = []string{
	"violence", "hate", "discrimination", "illegal", "drugs", "gambling",
	"adult", "explicit", "controversial", "misleading", "scam", "fraud",
}

const (
	ruleMatchConfidence    = 0.9
	keywordMatchConfidence = 0.8
	brandSafetyDeduction   = 30
)

// Engine evaluates creatives against the rule table and keeps one result
// per creative id.
type Engine struct {
	mu      sync.RWMutex
	rules   map[string]*Rule
	results map[string]*Result

	store *inventory.Store
	log   log.Logger
}

// NewEngine creates a moderation engine over the given inventory store.
func NewEngine(store *inventory.Store, logger log.Logger) *Engine {
	return &Engine{
		rules:   make(map[string]*Rule),
		results: make(map[string]*Result),
		store:   store,
		log:     logger,
	}
}

// AddRule inserts a rule, assigning an id when absent.
func (e *Engine) AddRule(r *Rule) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.compile()
	e.rules[r.ID] = r
	return r.ID
}

// UpdateRule replaces an existing rule.
func (e *Engine) UpdateRule(r *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[r.ID]; !ok {
		return ErrRuleNotFound
	}
	r.compile()
	e.rules[r.ID] = r
	return nil
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(e.rules, id)
	return nil
}

// Rules lists all rules.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out
}

// ModerateContent evaluates a creative against every enabled rule plus
// the independent brand-safety pass and stores the verdict, overwriting
// any previous one. Repeated runs over unchanged rules and content yield
// the same outcome.
func (e *Engine) ModerateContent(creativeID, moderatedBy string) (*Result, error) {
	creative, err := e.store.Creative(creativeID)
	if err != nil {
		return nil, fmt.Errorf("moderate %s: %w", creativeID, err)
	}
	if moderatedBy == "" {
		moderatedBy = "system"
	}

	text := creative.Text()

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{
		CreativeID:  creativeID,
		Approved:    true,
		SafetyScore: 100,
		ModeratedAt: time.Now(),
		ModeratedBy: moderatedBy,
	}

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		matched := rule.matches(text)
		confidence := ruleMatchConfidence
		reason := fmt.Sprintf("rule %q matched", rule.Name)

		if !matched && rule.Type == RuleBrandSafety {
			if kw := firstUnsafeKeyword(text); kw != "" {
				matched = true
				confidence = keywordMatchConfidence
				reason = fmt.Sprintf("unsafe keyword %q", kw)
			}
		}
		if !matched {
			continue
		}

		result.Flags = append(result.Flags, Flag{
			RuleID:     rule.ID,
			Severity:   rule.Severity,
			Reason:     reason,
			Confidence: confidence,
		})
		result.SafetyScore -= rule.Severity.deduction()
		if result.SafetyScore < 0 {
			result.SafetyScore = 0
		}
		if rule.Severity == SeverityHigh || rule.Severity == SeverityCritical {
			result.ReviewRequired = true
		}

		switch rule.Action {
		case ActionBlock:
			result.Approved = false
			result.BlockReasons = append(result.BlockReasons,
				fmt.Sprintf("blocked by rule %q", rule.Name))
		case ActionRequireReview:
			result.ReviewRequired = true
		}
	}

	if reasons := e.brandSafetyReasons(creative, text); len(reasons) > 0 {
		result.Approved = false
		result.SafetyScore -= brandSafetyDeduction
		if result.SafetyScore < 0 {
			result.SafetyScore = 0
		}
		result.BlockReasons = append(result.BlockReasons, reasons...)
	}

	e.results[creativeID] = result

	e.log.Debug("creative moderated",
		"creative", creativeID,
		"approved", result.Approved,
		"score", result.SafetyScore,
		"flags", len(result.Flags))

	return result, nil
}

// brandSafetyReasons runs the independent brand-safety pass: brand
// blacklist membership, advertiser category blacklist, and the unsafe
// keyword scan. Caller holds e.mu.
func (e *Engine) brandSafetyReasons(creative *ads.Creative, text string) []string {
	var reasons []string

	brand := creative.Content.Brand
	if e.store.BrandBlacklisted(brand) {
		reasons = append(reasons, fmt.Sprintf("brand %q is blacklisted", brand))
	}
	if adv := e.store.AdvertiserByBrand(brand); adv != nil && e.store.CategoryBlacklisted(adv.Category) {
		reasons = append(reasons, fmt.Sprintf("advertiser category %q is blacklisted", adv.Category))
	}
	if kw := firstUnsafeKeyword(text); kw != "" {
		reasons = append(reasons, fmt.Sprintf("content contains unsafe keyword %q", kw))
	}
	return reasons
}

func firstUnsafeKeyword(text string) string {
	for _, kw := range unsafeKeywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// Result returns the stored verdict for a creative, or nil when the
// creative was never moderated. Published results are never written
// again: re-moderation and approve/reject swap in fresh structs, so the
// returned pointer is safe to read without the engine lock.
func (e *Engine) Result(creativeID string) *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.results[creativeID]
}

// ApproveAd finalizes a verdict as approved. Requires a prior moderation
// result.
func (e *Engine) ApproveAd(creativeID, actor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, ok := e.results[creativeID]
	if !ok {
		return ErrNoModerationResult
	}
	result := prior.clone()
	result.Approved = true
	result.ReviewRequired = false
	result.ModeratedBy = actor
	result.ModeratedAt = time.Now()
	e.results[creativeID] = result

	e.log.Info("creative approved", "creative", creativeID, "by", actor)
	return nil
}

// RejectAd finalizes a verdict as rejected with a reason. Requires a
// prior moderation result.
func (e *Engine) RejectAd(creativeID, actor, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, ok := e.results[creativeID]
	if !ok {
		return ErrNoModerationResult
	}
	result := prior.clone()
	result.Approved = false
	result.ReviewRequired = false
	result.ModeratedBy = actor
	result.ModeratedAt = time.Now()
	if reason != "" {
		result.BlockReasons = append(result.BlockReasons, reason)
	}
	e.results[creativeID] = result

	e.log.Info("creative rejected", "creative", creativeID, "by", actor, "reason", reason)
	return nil
}
