// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sales

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/log"
)

var (
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrBudgetNotFound     = errors.New("budget not found")
)

// CampaignBudget is the spend state for one campaign.
type CampaignBudget struct {
	CampaignID  string          `json:"campaign_id"`
	Total       decimal.Decimal `json:"total"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	LastUpdated time.Time       `json:"last_updated"`
}

// BudgetLedger tracks campaign budgets and spend. Spend never exceeds
// the registered budget.
type BudgetLedger struct {
	mu      sync.RWMutex
	budgets map[string]*CampaignBudget
	log     log.Logger
}

// NewBudgetLedger creates an empty ledger.
func NewBudgetLedger(logger log.Logger) *BudgetLedger {
	return &BudgetLedger{
		budgets: make(map[string]*CampaignBudget),
		log:     logger,
	}
}

// SetBudget registers the budget for a campaign.
func (l *BudgetLedger) SetBudget(campaignID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.budgets[campaignID] = &CampaignBudget{
		CampaignID:  campaignID,
		Total:       amount,
		Spent:       decimal.Zero,
		Remaining:   amount,
		LastUpdated: time.Now(),
	}
	l.log.Info("campaign budget set", "campaign", campaignID, "amount", amount.String())
}

// RecordSpend deducts amount from the campaign budget and returns the
// remaining balance.
func (l *BudgetLedger) RecordSpend(campaignID string, amount decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	budget, ok := l.budgets[campaignID]
	if !ok {
		return decimal.Zero, ErrBudgetNotFound
	}
	if budget.Remaining.LessThan(amount) {
		return budget.Remaining, ErrInsufficientBudget
	}

	budget.Spent = budget.Spent.Add(amount)
	budget.Remaining = budget.Remaining.Sub(amount)
	budget.LastUpdated = time.Now()

	return budget.Remaining, nil
}

// Budget returns the spend state for a campaign.
func (l *BudgetLedger) Budget(campaignID string) (*CampaignBudget, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	budget, ok := l.budgets[campaignID]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	copied := *budget
	return &copied, nil
}
