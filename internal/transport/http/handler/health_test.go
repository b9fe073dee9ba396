package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthReq(action string) *http.Request {
	return withChiParams(httptest.NewRequest(http.MethodGet, "/v1/health-check/"+action, nil), "action", action)
}

func TestPing(t *testing.T) {
	h := NewHealthHandler(nil)

	rr := httptest.NewRecorder()
	h.Ping(rr, healthReq("ping"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Ping(rr, healthReq("nope"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReady_AllChecksPass(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	h.Ping(rr, healthReq("ready"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok","redis":"ok"}}`, rr.Body.String())
}

func TestReady_FailingCheckIs503(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	rr := httptest.NewRecorder()
	h.Ping(rr, healthReq("ready"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"ok","redis":"unavailable"}}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestReady_NoChecks(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil).Ping(rr, healthReq("ready"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{}}`, rr.Body.String())
}
