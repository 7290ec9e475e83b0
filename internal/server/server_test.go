package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zackkatz/freescout-gpt-assistant/internal/bridge"
	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"
)

func testEngine() http.Handler {
	opts := manager.Options{Store: settings.NewMemory()}
	return New(manager.New(opts), bridge.NewHandler(opts, nil))
}

func TestHealthEndpoint(t *testing.T) {
	engine := testEngine()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var health manager.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != manager.StatusNotInitialized {
		t.Fatalf("unexpected health status: %s", health.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := testEngine()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var metrics manager.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.Initialized {
		t.Fatalf("fresh manager reported initialized")
	}
	if metrics.Platform != "unknown" {
		t.Fatalf("unexpected platform: %s", metrics.Platform)
	}
}

func TestUnknownRoute(t *testing.T) {
	engine := testEngine()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
