package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupchat",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "groupchat",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	messagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groupchat",
		Name:      "messages_stored_total",
		Help:      "Messages durably appended to the store.",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupchat",
		Subsystem: "relay",
		Name:      "events_published_total",
		Help:      "Events accepted by the broadcast relay, by event kind.",
	}, []string{"event"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupchat",
		Subsystem: "relay",
		Name:      "events_dropped_total",
		Help:      "Events dropped instead of delivered, by reason.",
	}, []string{"reason"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupchat",
		Subsystem: "realtime",
		Name:      "sessions_active",
		Help:      "Currently connected realtime sessions.",
	})

	purgedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groupchat",
		Subsystem: "retention",
		Name:      "messages_purged_total",
		Help:      "Messages removed by retention sweeps.",
	})
)

func IncMessagesStored()              { messagesStored.Inc() }
func IncEventsPublished(event string) { eventsPublished.WithLabelValues(event).Inc() }
func IncEventsDropped(reason string)  { eventsDropped.WithLabelValues(reason).Inc() }
func IncSessions()                    { sessionsActive.Inc() }
func DecSessions()                    { sessionsActive.Dec() }
func AddPurged(n int)                 { purgedMessages.Add(float64(n)) }

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per route template.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}
