// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/log"
)

func addCreative(store *inventory.Store, id, title, description, brand string) {
	now := time.Now()
	store.AddCreative(&ads.Creative{
		ID:   id,
		Type: ads.TypeBanner,
		Content: ads.AdContent{
			Title:       title,
			Description: description,
			Brand:       brand,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
}

func newEngine(t *testing.T) (*Engine, *inventory.Store) {
	t.Helper()
	store := inventory.NewStore(log.NoOp())
	return NewEngine(store, log.NoOp()), store
}

func TestRuleCRUD(t *testing.T) {
	require := require.New(t)
	engine, _ := newEngine(t)

	id := engine.AddRule(&Rule{
		Name:     "no crypto",
		Type:     RuleKeywordBlacklist,
		Pattern:  "crypto",
		Severity: SeverityMedium,
		Action:   ActionFlag,
		Enabled:  true,
	})
	require.NotEmpty(id)
	require.Len(engine.Rules(), 1)

	require.NoError(engine.UpdateRule(&Rule{
		ID:       id,
		Name:     "no crypto",
		Type:     RuleKeywordBlacklist,
		Pattern:  "cryptocurrency",
		Severity: SeverityHigh,
		Action:   ActionBlock,
		Enabled:  true,
	}))
	require.ErrorIs(engine.UpdateRule(&Rule{ID: "missing"}), ErrRuleNotFound)

	require.NoError(engine.DeleteRule(id))
	require.ErrorIs(engine.DeleteRule(id), ErrRuleNotFound)
}

func TestModerateCleanContent(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Running shoes", "Lightweight daily trainers", "Acme")

	result, err := engine.ModerateContent("cr-1", "")
	require.NoError(err)
	require.True(result.Approved)
	require.Equal(100, result.SafetyScore)
	require.False(result.ReviewRequired)
	require.Empty(result.Flags)
	require.Equal("system", result.ModeratedBy)
}

func TestModerateUnknownCreative(t *testing.T) {
	require := require.New(t)
	engine, _ := newEngine(t)

	_, err := engine.ModerateContent("missing", "system")
	require.ErrorIs(err, inventory.ErrCreativeNotFound)
}

func TestSeverityDeductions(t *testing.T) {
	tests := []struct {
		severity Severity
		want     int
	}{
		{SeverityLow, 90},
		{SeverityMedium, 75},
		{SeverityHigh, 50},
		{SeverityCritical, 20},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			require := require.New(t)
			engine, store := newEngine(t)
			addCreative(store, "cr-1", "Buy cheap pills", "Limited offer", "Acme")

			engine.AddRule(&Rule{
				Name:     "pills",
				Type:     RuleKeywordBlacklist,
				Pattern:  "pills",
				Severity: tt.severity,
				Action:   ActionFlag,
				Enabled:  true,
			})

			result, err := engine.ModerateContent("cr-1", "system")
			require.NoError(err)
			require.Equal(tt.want, result.SafetyScore)
			require.Len(result.Flags, 1)
		})
	}
}

func TestSafetyScoreFloorsAtZero(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "bad words everywhere", "bad bad words", "Acme")

	engine.AddRule(&Rule{Name: "a", Pattern: "bad", Severity: SeverityCritical, Action: ActionFlag, Enabled: true})
	engine.AddRule(&Rule{Name: "b", Pattern: "words", Severity: SeverityCritical, Action: ActionFlag, Enabled: true})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.Equal(0, result.SafetyScore)
}

func TestBlockLatchIsOneWay(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Casino bonus inside", "Claim your bonus", "Acme")

	engine.AddRule(&Rule{Name: "casino", Pattern: "casino", Severity: SeverityLow, Action: ActionBlock, Enabled: true})
	// A later non-blocking rule must not clear the latch.
	engine.AddRule(&Rule{Name: "bonus", Pattern: "bonus", Severity: SeverityLow, Action: ActionAutoApprove, Enabled: true})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.False(result.Approved)
	require.NotEmpty(result.BlockReasons)
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Casino bonus", "Spin now", "Acme")

	engine.AddRule(&Rule{Name: "casino", Pattern: "casino", Severity: SeverityHigh, Action: ActionBlock, Enabled: false})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.True(result.Approved)
	require.Empty(result.Flags)
}

func TestReviewRequired(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Miracle cure", "Works instantly", "Acme")

	engine.AddRule(&Rule{Name: "cure", Pattern: "cure", Severity: SeverityLow, Action: ActionRequireReview, Enabled: true})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.True(result.ReviewRequired)

	// High severity forces review even with a plain flag action.
	engine2, store2 := newEngine(t)
	addCreative(store2, "cr-2", "Miracle cure", "Works instantly", "Acme")
	engine2.AddRule(&Rule{Name: "cure", Pattern: "cure", Severity: SeverityHigh, Action: ActionFlag, Enabled: true})

	result, err = engine2.ModerateContent("cr-2", "system")
	require.NoError(err)
	require.True(result.ReviewRequired)
}

func TestBrandSafetyRuleScansUnsafeKeywords(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Win big gambling tonight", "Play now", "Acme")

	engine.AddRule(&Rule{
		Name:     "brand safety",
		Type:     RuleBrandSafety,
		Pattern:  "nonmatching-pattern-zzz",
		Severity: SeverityCritical,
		Action:   ActionBlock,
		Enabled:  true,
	})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.False(result.Approved)
	require.Len(result.Flags, 1)
	// 100 - 80 (critical rule) - 30 (brand safety pass on the same keyword).
	require.Equal(0, result.SafetyScore)
}

func TestBrandSafetyPassBlacklistedBrand(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Plain headline", "Plain copy", "BadBrand")
	store.BlacklistBrand("badbrand")

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.False(result.Approved)
	require.Equal(70, result.SafetyScore)
	require.NotEmpty(result.BlockReasons)
}

func TestBrandSafetyPassCategoryBlacklist(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	store.AddAdvertiser(&ads.Advertiser{ID: "adv-1", Name: "Acme", Category: "tobacco"})
	store.BlacklistCategory("tobacco")
	addCreative(store, "cr-1", "Plain headline", "Plain copy", "Acme")

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.False(result.Approved)
}

func TestModerationOverwritesPriorResult(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Casino night", "Play now", "Acme")

	ruleID := engine.AddRule(&Rule{Name: "casino", Pattern: "casino", Severity: SeverityMedium, Action: ActionFlag, Enabled: true})

	first, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.Len(first.Flags, 1)
	require.Equal(75, first.SafetyScore)

	// Repeat run: same outcome, not additive.
	second, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.Len(second.Flags, 1)
	require.Equal(75, second.SafetyScore)
	require.Equal(first.Approved, second.Approved)

	// Removing the rule and re-running replaces the old flags entirely.
	require.NoError(engine.DeleteRule(ruleID))
	third, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.Empty(third.Flags)
	require.Equal(100, third.SafetyScore)
}

func TestRegexPattern(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Get rich quick!!!", "Guaranteed returns", "Acme")

	engine.AddRule(&Rule{
		Name:     "get rich",
		Pattern:  `get\s+rich\s+quick`,
		Severity: SeverityHigh,
		Action:   ActionBlock,
		Enabled:  true,
	})

	result, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	require.False(result.Approved)
}

func TestApproveRejectRequirePriorResult(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Casino night", "Play now", "Acme")

	require.ErrorIs(engine.ApproveAd("cr-1", "alice"), ErrNoModerationResult)
	require.ErrorIs(engine.RejectAd("cr-1", "alice", "off brand"), ErrNoModerationResult)

	engine.AddRule(&Rule{Name: "casino", Pattern: "casino", Severity: SeverityHigh, Action: ActionBlock, Enabled: true})
	_, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)

	require.NoError(engine.ApproveAd("cr-1", "alice"))
	result := engine.Result("cr-1")
	require.True(result.Approved)
	require.False(result.ReviewRequired)
	require.Equal("alice", result.ModeratedBy)

	require.NoError(engine.RejectAd("cr-1", "bob", "off brand"))
	result = engine.Result("cr-1")
	require.False(result.Approved)
	require.Equal("bob", result.ModeratedBy)
	require.Contains(result.BlockReasons, "off brand")
}

func TestFinalizeSwapsFreshResult(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Running shoes", "Daily trainers", "Acme")

	_, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)
	initial := engine.Result("cr-1")

	require.NoError(engine.RejectAd("cr-1", "alice", "off brand"))
	rejected := engine.Result("cr-1")
	require.NotSame(initial, rejected)
	require.True(initial.Approved)
	require.Empty(initial.BlockReasons)
	require.False(rejected.Approved)

	require.NoError(engine.ApproveAd("cr-1", "bob"))
	approved := engine.Result("cr-1")
	require.NotSame(rejected, approved)
	require.False(rejected.Approved)
	require.Contains(rejected.BlockReasons, "off brand")
	require.True(approved.Approved)
}

func TestFinalizeConcurrentWithReaders(t *testing.T) {
	require := require.New(t)
	engine, store := newEngine(t)
	addCreative(store, "cr-1", "Running shoes", "Daily trainers", "Acme")

	_, err := engine.ModerateContent("cr-1", "system")
	require.NoError(err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			engine.RejectAd("cr-1", "alice", "")
			engine.ApproveAd("cr-1", "alice")
		}
	}()
	for i := 0; i < 200; i++ {
		result := engine.Result("cr-1")
		require.Equal("cr-1", result.CreativeID)
		require.Equal(100, result.SafetyScore)
	}
	<-done
}
