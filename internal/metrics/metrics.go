package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. It implements fanout.Recorder.
type Metrics struct {
	DeliveryAttempts *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	RemovedDevices   prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_delivery_attempts_total",
				Help: "Delivery attempts by channel and outcome",
			},
			[]string{"channel", "status"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notify_delivery_duration_seconds",
				Help:    "Duration of single delivery attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		RemovedDevices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_devices_removed_total",
			Help: "Device registrations removed after the push provider rejected their token",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notify_http_request_duration_seconds",
				Help:    "Histogram of response durations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
	reg.MustRegister(m.DeliveryAttempts, m.DeliveryDuration, m.RemovedDevices, m.HTTPRequests, m.RequestDuration)
	return m
}

func (m *Metrics) ObserveAttempt(channel string, err error, took time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.DeliveryAttempts.WithLabelValues(channel, status).Inc()
	m.DeliveryDuration.WithLabelValues(channel).Observe(took.Seconds())
}

func (m *Metrics) DevicesRemoved(n int64) {
	if n > 0 {
		m.RemovedDevices.Add(float64(n))
	}
}

// Middleware records request count and latency labelled by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		m.HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(ww.Status())).Inc()
		m.RequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
