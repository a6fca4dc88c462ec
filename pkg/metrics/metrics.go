// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_requests_total",
		Help: "Total ad requests received.",
	})
	AdsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_served_total",
		Help: "Total ad requests answered with a real creative.",
	})
	Fallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_fallbacks_total",
		Help: "Total ad requests answered with the fallback creative.",
	})

	Impressions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_impressions_total",
		Help: "Total recorded impressions.",
	})
	Clicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_clicks_total",
		Help: "Total recorded clicks.",
	})
	Conversions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_conversions_total",
		Help: "Total recorded conversions.",
	})

	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_events_ingested_total",
		Help: "Events accepted into the analytics store.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adserve_events_dropped_total",
		Help: "Events dropped by the lossy stream or batch validation.",
	})

	ActiveAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adserve_active_alerts",
		Help: "Unacknowledged analytics alerts.",
	})
)
