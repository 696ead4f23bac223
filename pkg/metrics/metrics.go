package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session resolution outcomes: ok, unauthenticated, error.
	SessionLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_session_lookups_total",
		Help: "Total number of session token lookups by outcome",
	}, []string{"result"})

	ConversationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_conversations_created_total",
		Help: "Total number of conversations created",
	}, []string{"mode"})
	ConversationsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbit_conversations_deleted_total",
		Help: "Total number of conversations deleted",
	})
	MessagesStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_messages_stored_total",
		Help: "Total number of messages appended to conversations",
	}, []string{"mode", "role"})

	CompletionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_completion_requests_total",
		Help: "Total number of completion backend calls by outcome",
	}, []string{"mode", "result"})
	CompletionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbit_completion_duration_seconds",
		Help:    "Latency of completion backend calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"mode"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_rate_limited_total",
		Help: "Total number of requests rejected by a rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(SessionLookups)
	prometheus.MustRegister(ConversationsCreated)
	prometheus.MustRegister(ConversationsDeleted)
	prometheus.MustRegister(MessagesStored)
	prometheus.MustRegister(CompletionRequests)
	prometheus.MustRegister(CompletionDuration)
	prometheus.MustRegister(RateLimited)
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
