// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/analytics"
	"github.com/adxyz/adserve/pkg/inventory"
	"github.com/adxyz/adserve/pkg/moderation"
	"github.com/adxyz/adserve/pkg/rtb"
	"github.com/adxyz/adserve/pkg/sales"
)

func (s *Server) routes(r *mux.Router) {
	// Serving
	r.HandleFunc("/v1/ads/request", s.handleAdRequest).Methods("POST")
	r.HandleFunc("/v1/track/impression", s.handleTrackImpression).Methods("POST")
	r.HandleFunc("/v1/track/click", s.handleTrackClick).Methods("POST")
	r.HandleFunc("/v1/track/conversion", s.handleTrackConversion).Methods("POST")
	r.HandleFunc("/v1/metrics/{creativeID}", s.handleCreativeMetrics).Methods("GET")
	r.HandleFunc("/v1/metrics/{creativeID}", s.handleResetMetrics).Methods("DELETE")
	r.HandleFunc("/v1/admin/sessions/{sessionID}/frequency", s.handleResetSessionFrequency).Methods("DELETE")

	// Inventory admin
	r.HandleFunc("/v1/admin/creatives", s.handleAddCreative).Methods("POST")
	r.HandleFunc("/v1/admin/creatives/{id}", s.handleRemoveCreative).Methods("DELETE")
	r.HandleFunc("/v1/admin/advertisers", s.handleAddAdvertiser).Methods("POST")
	r.HandleFunc("/v1/admin/advertisers", s.handleListAdvertisers).Methods("GET")
	r.HandleFunc("/v1/admin/advertisers/{id}/status", s.handleAdvertiserStatus).Methods("PUT")
	r.HandleFunc("/v1/admin/campaigns", s.handleCreateCampaign).Methods("POST")
	r.HandleFunc("/v1/admin/campaigns", s.handleListCampaigns).Methods("GET")
	r.HandleFunc("/v1/admin/lists/{list}/{entry}", s.handleListAdd).Methods("POST")
	r.HandleFunc("/v1/admin/lists/{list}/{entry}", s.handleListRemove).Methods("DELETE")

	// Moderation admin
	r.HandleFunc("/v1/admin/rules", s.handleAddRule).Methods("POST")
	r.HandleFunc("/v1/admin/rules", s.handleListRules).Methods("GET")
	r.HandleFunc("/v1/admin/rules/{id}", s.handleUpdateRule).Methods("PUT")
	r.HandleFunc("/v1/admin/rules/{id}", s.handleDeleteRule).Methods("DELETE")
	r.HandleFunc("/v1/admin/moderate/{creativeID}", s.handleModerate).Methods("POST")
	r.HandleFunc("/v1/admin/approve/{creativeID}", s.handleApprove).Methods("POST")
	r.HandleFunc("/v1/admin/reject/{creativeID}", s.handleReject).Methods("POST")

	// Analytics
	r.HandleFunc("/v1/analytics/events", s.handleEventBatch).Methods("POST")
	r.HandleFunc("/v1/analytics/metrics", s.handleAnalyticsMetrics).Methods("POST")
	r.HandleFunc("/v1/analytics/aggregated", s.handleAggregated).Methods("GET")
	r.HandleFunc("/v1/analytics/insights", s.handleInsights).Methods("GET")
	r.HandleFunc("/v1/analytics/insights/generate", s.handleGenerateInsights).Methods("POST")
	r.HandleFunc("/v1/analytics/alerts", s.handleAlerts).Methods("GET")
	r.HandleFunc("/v1/analytics/alerts/{id}/ack", s.handleAckAlert).Methods("POST")

	// Sales
	r.HandleFunc("/v1/sales/bid", s.handleProgrammaticBid).Methods("POST")
	r.HandleFunc("/v1/sales/openrtb", s.handleOpenRTBBid).Methods("POST")
	r.HandleFunc("/v1/sales/direct", s.handleDirectCampaign).Methods("POST")
	r.HandleFunc("/v1/sales/house", s.handleHouseCampaign).Methods("POST")
	r.HandleFunc("/v1/sales/campaigns/{id}/spend", s.handleRecordSpend).Methods("POST")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdRequest(w http.ResponseWriter, r *http.Request) {
	var req ads.AdRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Serving.RequestTimeout.Std())
	defer cancel()

	resp, err := s.selection.RequestAd(ctx, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type trackRequest struct {
	CreativeID string            `json:"creative_id"`
	SessionID  string            `json:"session_id"`
	Context    map[string]string `json:"context,omitempty"`
	Value      decimal.Decimal   `json:"value,omitempty"`
}

func (s *Server) handleTrackImpression(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	s.tracker.RecordImpression(req.CreativeID, req.SessionID, req.Context)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	s.tracker.RecordClick(req.CreativeID, req.SessionID, req.Context)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackConversion(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	s.tracker.RecordConversion(req.CreativeID, req.SessionID, req.Value, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreativeMetrics(w http.ResponseWriter, r *http.Request) {
	creativeID := mux.Vars(r)["creativeID"]
	writeJSON(w, http.StatusOK, s.tracker.Metrics(creativeID))
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	s.tracker.ResetMetrics(mux.Vars(r)["creativeID"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetSessionFrequency(w http.ResponseWriter, r *http.Request) {
	s.selection.ResetSessionFrequency(mux.Vars(r)["sessionID"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddCreative(w http.ResponseWriter, r *http.Request) {
	var creative ads.Creative
	if !decode(w, r, &creative) {
		return
	}
	s.store.AddCreative(&creative)
	writeJSON(w, http.StatusCreated, creative)
}

func (s *Server) handleRemoveCreative(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveCreative(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddAdvertiser(w http.ResponseWriter, r *http.Request) {
	var advertiser ads.Advertiser
	if !decode(w, r, &advertiser) {
		return
	}
	s.store.AddAdvertiser(&advertiser)
	writeJSON(w, http.StatusCreated, advertiser)
}

func (s *Server) handleListAdvertisers(w http.ResponseWriter, r *http.Request) {
	status := ads.AdvertiserStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, s.store.Advertisers(status))
}

func (s *Server) handleAdvertiserStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status ads.AdvertiserStatus `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.store.UpdateAdvertiserStatus(mux.Vars(r)["id"], body.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var campaign ads.Campaign
	if !decode(w, r, &campaign) {
		return
	}
	if err := s.store.CreateCampaign(&campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	advertiser := r.URL.Query().Get("advertiser")
	activeOnly := r.URL.Query().Get("active") == "true"
	writeJSON(w, http.StatusOK, s.store.Campaigns(advertiser, activeOnly))
}

func (s *Server) handleListAdd(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	switch vars["list"] {
	case "whitelist":
		s.store.WhitelistBrand(vars["entry"])
	case "blacklist":
		s.store.BlacklistBrand(vars["entry"])
	case "category-blacklist":
		s.store.BlacklistCategory(vars["entry"])
	default:
		http.Error(w, "unknown list", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	switch vars["list"] {
	case "whitelist":
		s.store.UnwhitelistBrand(vars["entry"])
	case "blacklist":
		s.store.UnblacklistBrand(vars["entry"])
	case "category-blacklist":
		s.store.UnblacklistCategory(vars["entry"])
	default:
		http.Error(w, "unknown list", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule moderation.Rule
	if !decode(w, r, &rule) {
		return
	}
	id := s.moderation.AddRule(&rule)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.moderation.Rules())
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule moderation.Rule
	if !decode(w, r, &rule) {
		return
	}
	rule.ID = mux.Vars(r)["id"]
	if err := s.moderation.UpdateRule(&rule); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.moderation.DeleteRule(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	moderatedBy := r.URL.Query().Get("by")
	result, err := s.moderation.ModerateContent(mux.Vars(r)["creativeID"], moderatedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type reviewRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.moderation.ApproveAd(mux.Vars(r)["creativeID"], req.Actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.moderation.RejectAd(mux.Vars(r)["creativeID"], req.Actor, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEventBatch(w http.ResponseWriter, r *http.Request) {
	var batch analytics.EventBatch
	if !decode(w, r, &batch) {
		return
	}
	if err := s.analytics.ProcessEventBatch(&batch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAnalyticsMetrics(w http.ResponseWriter, r *http.Request) {
	var filter analytics.Filter
	if !decode(w, r, &filter) {
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.Metrics(&filter))
}

func (s *Server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = parsed
	}
	writeJSON(w, http.StatusOK, s.analytics.AggregatedMetrics(window))
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.Insights())
}

func (s *Server) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.GenerateInsights())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.Alerts())
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.analytics.AcknowledgeAlert(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgrammaticBid(w http.ResponseWriter, r *http.Request) {
	var bid sales.BidRequest
	if !decode(w, r, &bid) {
		return
	}
	result, err := s.sales.HandleProgrammaticBid(r.Context(), &bid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOpenRTBBid(w http.ResponseWriter, r *http.Request) {
	var req openrtb2.BidRequest
	if !decode(w, r, &req) {
		return
	}
	bid, err := rtb.FromOpenRTB(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.sales.HandleProgrammaticBid(r.Context(), bid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDirectCampaign(w http.ResponseWriter, r *http.Request) {
	var deal sales.DirectDeal
	if !decode(w, r, &deal) {
		return
	}
	campaign, err := s.sales.CreateDirectCampaign(&deal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleHouseCampaign(w http.ResponseWriter, r *http.Request) {
	var cfg sales.HouseAdConfig
	if !decode(w, r, &cfg) {
		return
	}
	campaign, err := s.sales.CreateHouseAdCampaign(&cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleRecordSpend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.sales.RecordSpend(mux.Vars(r)["id"], body.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrCreativeNotFound),
		errors.Is(err, inventory.ErrAdvertiserNotFound),
		errors.Is(err, inventory.ErrCampaignNotFound),
		errors.Is(err, moderation.ErrRuleNotFound),
		errors.Is(err, analytics.ErrAlertNotFound),
		errors.Is(err, sales.ErrBudgetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, analytics.ErrInvalidBatch):
		status = http.StatusBadRequest
	case errors.Is(err, moderation.ErrNoModerationResult):
		status = http.StatusConflict
	case errors.Is(err, sales.ErrInsufficientBudget):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), status)
}
