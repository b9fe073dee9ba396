package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	r.CodeIssued("email")
	r.CodeIssued("email")
	r.DeliveryFailed("phone")
	r.Verification("mismatch")
	r.Recovery("created")
	r.BackendCall("confirm", nil)
	r.BackendCall("confirm", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.codesIssued.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveryFailed.WithLabelValues("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verifications.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recoveries.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backendCalls.WithLabelValues("confirm", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backendCalls.WithLabelValues("confirm", "error")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.CodeIssued("email")
		r.Verification("success")
		r.ObserveRequest("POST", "/v1/2fa/verify-code", 200, time.Millisecond)
	})
	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	r.Recovery("conflict")
	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `twofa_identity_recoveries_total{outcome="conflict"} 1`)
}
