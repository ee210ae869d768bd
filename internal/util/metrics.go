package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_orders_created_total",
		Help: "Total number of service orders taken in",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	TransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected transition attempts",
	}, []string{"reason"})

	TransitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_transition_latency_seconds",
		Help:    "Latency of transition operations",
		Buckets: prometheus.DefBuckets,
	})

	PartsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parts_consumed_total",
		Help: "Total quantity of parts consumed",
	})

	ConsumptionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "part_consumptions_failed_total",
		Help: "Total number of failed part consumptions",
	}, []string{"reason"})

	ConsumptionsReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "part_consumptions_reversed_total",
		Help: "Total number of reversed part consumptions",
	})

	StockReplenishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "part_stock_replenished_total",
		Help: "Total quantity of parts replenished",
	})

	StockLowAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "part_stock_low_alerts_total",
		Help: "Total number of low-stock alerts raised",
	})

	SettlementsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_settlements_created_total",
		Help: "Total number of commission settlements created",
	})

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
