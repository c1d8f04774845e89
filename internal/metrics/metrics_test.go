package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAttempt(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAttempt("push", nil, 10*time.Millisecond)
	m.ObserveAttempt("push", errors.New("boom"), time.Millisecond)
	m.ObserveAttempt("sms", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("push", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("push", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("sms", "success")))
}

func TestDevicesRemoved(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.DevicesRemoved(3)
	m.DevicesRemoved(0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RemovedDevices))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Put("/v1/notifications/{id}/read", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPut, "/v1/notifications/"+id+"/read", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequests.WithLabelValues("/v1/notifications/{id}/read", http.MethodPut, "204")))
}
