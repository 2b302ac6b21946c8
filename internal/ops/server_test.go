package ops

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wayfarer-social/backend/internal/cachemanager"
	"github.com/wayfarer-social/backend/internal/cachestore"
	"github.com/wayfarer-social/backend/internal/kvstore"
	"github.com/wayfarer-social/backend/internal/metrics"
	"github.com/wayfarer-social/backend/internal/ratelimit"
	"github.com/wayfarer-social/backend/internal/session"
)

func newTestHandler(t *testing.T, ping func() error) (*Handler, *kvstore.MemoryStore) {
	t.Helper()
	kv := kvstore.NewMemory()
	manager := cachemanager.New(
		cachestore.New(kv, 0),
		session.New(kv),
		ratelimit.New(kv),
		metrics.NewRecorder(kv),
	)
	return NewHandler(manager, ping), kv
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h, _ := newTestHandler(t, func() error { return nil })
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON response: %v", err)
		}
		if body["status"] != "ok" {
			t.Errorf("status field = %q, want ok", body["status"])
		}
	})

	t.Run("backend down", func(t *testing.T) {
		h, _ := newTestHandler(t, func() error { return errors.New("connection refused") })
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
	})
}

func TestCacheStatsEndpoint(t *testing.T) {
	h, kv := newTestHandler(t, func() error { return nil })
	kv.InfoData = map[string]map[string]string{
		"memory": {"used_memory_human": "512K"},
	}
	kv.SetWithoutTTL("post:1", "{}")

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var stats struct {
		MemoryUsage   map[string]string `json:"memory_usage"`
		KeyStatistics map[string]int    `json:"key_statistics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if stats.MemoryUsage["used_memory"] != "512K" {
		t.Errorf("memory usage = %#v", stats.MemoryUsage)
	}
	if stats.KeyStatistics["posts"] != 1 {
		t.Errorf("key statistics = %#v", stats.KeyStatistics)
	}
}

func TestCacheStatsBackendFailure(t *testing.T) {
	h, kv := newTestHandler(t, func() error { return nil })
	kv.Fail = true

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
