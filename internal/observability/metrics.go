package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges for the sync loops. Registered on the default
// registry; cmd/gatewaysim exposes them via promhttp for local runs.
var (
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "polls_total", Help: "Completed poll cycles per stream"},
		[]string{"stream"},
	)
	PollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "poll_failures_total", Help: "Failed poll cycles per stream"},
		[]string{"stream"},
	)
	PollsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "polls_skipped_total", Help: "Ticks skipped because the previous cycle was still in flight"},
		[]string{"stream"},
	)
	NotificationsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "notifications_merged_total", Help: "New notifications added to the local log"},
	)
	StaleRidePayloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "stale_ride_payloads_total", Help: "Server ride payloads ignored to avoid regressing a terminal ride"},
	)

	PushMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "push_messages_total", Help: "Inbound push frames dispatched"},
	)
	PushMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "push_malformed_total", Help: "Inbound push frames dropped as malformed"},
	)
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "reconnects_total", Help: "Push channel dial attempts that failed"},
	)
	ReconnectGiveUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "cabsync", Name: "reconnect_giveups_total", Help: "Times the push channel exhausted its reconnect budget"},
	)
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "cabsync", Name: "push_connected", Help: "1 while the push channel is connected"},
	)
)
