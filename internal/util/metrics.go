package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_received_total",
		Help: "Total number of provider events received, by dispatch result",
	}, []string{"result"})

	EventsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_rejected_total",
		Help: "Total number of events rejected by business rules",
	}, []string{"event_type"})

	EventDispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_dispatch_latency_seconds",
		Help:    "Latency of event dispatch including the transaction",
		Buckets: prometheus.DefBuckets,
	})

	MovementsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_movements_appended_total",
		Help: "Total number of inventory ledger movements appended",
	}, []string{"reason"})

	StockAlertsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_created_total",
		Help: "Total number of stock alerts raised",
	}, []string{"type"})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
