package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery channel labels.
const (
	ChannelRealtime = "realtime"
	ChannelEmail    = "email"
	ChannelPush     = "push"
	ChannelSettings = "settings"
	ChannelDelegate = "delegate"
)

// Delivery outcome labels.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeTimeout = "timeout"
)

var (
	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_channel_deliveries_total",
			Help: "Delivery attempts per channel by outcome.",
		},
		[]string{"channel", "outcome"},
	)
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_dispatch_duration_seconds",
			Help:    "Time spent dispatching one event to all of its channels.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
	HandlerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_bus_handler_panics_total",
			Help: "Event handler panics recovered by the bus.",
		},
		[]string{"kind"},
	)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_events_published_total",
			Help: "Events accepted by the bus.",
		},
		[]string{"kind"},
	)
	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordDelivery counts one channel attempt.
func RecordDelivery(channel, outcome string) {
	ChannelDeliveries.WithLabelValues(channel, outcome).Inc()
}

// ObserveDispatch records how long a dispatch of kind took since start.
func ObserveDispatch(kind string, start time.Time) {
	DispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
