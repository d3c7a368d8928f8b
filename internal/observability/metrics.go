package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_booking"

var (
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "geocode_requests_total", Help: "Geocode lookups by outcome"},
		[]string{"outcome"},
	)
	RouteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_requests_total", Help: "Distance estimates by source"},
		[]string{"source"},
	)
	RouteLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "route_latency_seconds", Help: "Routing service latency seconds"})

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_pipeline_runs_total", Help: "Geocode/distance pipeline runs by result"},
		[]string{"result"},
	)
	BookingsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bookings_submitted_total", Help: "Booking submissions by result"},
		[]string{"result"},
	)

	ActiveOrders = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_orders", Help: "Orders currently tracked"})

	TrackerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "tracker_events_total", Help: "Tracker events by kind and outcome"},
		[]string{"kind", "outcome"},
	)

	PushReconnects = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "push_reconnects_total", Help: "Push connection attempts after a disconnect"})
	PushConnected  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "push_connected", Help: "Open push connections"})
	PushMessages   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_messages_total", Help: "Push messages received by topic family"},
		[]string{"topic"},
	)

	DriversVisible = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_visible", Help: "Drivers in the local fleet view"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "backend_requests_total", Help: "Backend REST calls by method and status class"},
		[]string{"method", "status"},
	)
)
