package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var proxyNet = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

func newReq(remote string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, proxyNet)
	req := newReq("203.0.113.7:4000", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-Ip": "5.6.7.8"})
	assert.Equal(t, "203.0.113.7", rl.clientIP(req))
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, nil)
	req := newReq("10.0.0.1:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"})
	assert.Equal(t, "10.0.0.1", rl.clientIP(req))
}

func TestClientIP_TrustedProxyUsesRightmostUntrustedHop(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, proxyNet)
	// The client prepended a spoofed hop; the proxy appended the real one.
	req := newReq("10.0.0.1:4000", map[string]string{"X-Forwarded-For": "9.9.9.9, 198.51.100.4, 10.1.2.3"})
	assert.Equal(t, "198.51.100.4", rl.clientIP(req))
}

func TestClientIP_TrustedProxyFallsBackToXRealIP(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, proxyNet)
	req := newReq("10.0.0.1:4000", map[string]string{"X-Real-Ip": "198.51.100.9"})
	assert.Equal(t, "198.51.100.9", rl.clientIP(req))
}

func TestClientIP_AllHopsTrustedFallsBackToPeer(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, proxyNet)
	req := newReq("10.0.0.1:4000", map[string]string{"X-Forwarded-For": "10.0.0.2"})
	assert.Equal(t, "10.0.0.1", rl.clientIP(req))
}

func TestClientIP_BadRemoteAddr(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, proxyNet)
	assert.Equal(t, "pipe", rl.clientIP(newReq("pipe", nil)))
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 2, nil)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, newReq("10.0.0.1:1234", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_RejectionCarriesRetryAfter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.5), 1, nil)
	h := rl.Limit(http.HandlerFunc(okHandler))

	h.ServeHTTP(httptest.NewRecorder(), newReq("10.0.0.1:1234", nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newReq("10.0.0.1:1234", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"too many requests","error_code":429}`, rr.Body.String())
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 2, retry, 1)
}

func TestRateLimiter_SeparateBucketsPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, nil)
	h := rl.Limit(http.HandlerFunc(okHandler))

	for _, remote := range []string{"203.0.113.1:1000", "203.0.113.2:1000"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, newReq(remote, nil))
		assert.Equal(t, http.StatusOK, rr.Code, remote)
	}
}

func TestRateLimiter_SpoofedForwardedForSharesBucket(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, proxyNet)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 2)
	for _, spoof := range []string{"1.1.1.1", "2.2.2.2"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, newReq("203.0.113.7:5555", map[string]string{"X-Forwarded-For": spoof}))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_TrustedProxySeparatesClients(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, proxyNet)
	h := rl.Limit(http.HandlerFunc(okHandler))

	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, newReq("10.0.0.1:443", map[string]string{"X-Forwarded-For": client}))
		assert.Equal(t, http.StatusOK, rr.Code, client)
	}
}
