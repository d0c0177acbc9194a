package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/heydoc-scheduler/internal/api/router"
	"github.com/wolfman30/heydoc-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/heydoc-scheduler/internal/config"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

func TestSetupMetricsExposesSchedulingMetrics(t *testing.T) {
	handler, registry := setupMetrics()
	if handler == nil || registry == nil {
		t.Fatalf("expected non-nil handler and registry")
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"available_slots": []string{"09:00"}})
	}))
	defer backend.Close()

	cfg := &appconfig.Config{
		APIBaseURL:         backend.URL,
		APIToken:           "tok",
		Timezone:           "UTC",
		CancellationWindow: 24 * time.Hour,
		BookingHorizonDays: 30,
	}
	engine, err := bootstrap.BuildEngine(context.Background(), cfg, logging.New("error"), registry)
	if err != nil {
		t.Fatalf("BuildEngine() error = %v", err)
	}
	defer engine.Close()

	if _, err := engine.Client.AvailableSlots(context.Background(), 7, "2025-03-10"); err != nil {
		t.Fatalf("AvailableSlots() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "heydoc_api_requests_total") {
		t.Fatalf("expected api request counter to be exported")
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	handler, registry := setupMetrics()
	cfg := &appconfig.Config{APIBaseURL: "http://127.0.0.1:1", Timezone: "UTC"}
	engine, err := bootstrap.BuildEngine(context.Background(), cfg, logging.New("error"), registry)
	if err != nil {
		t.Fatalf("BuildEngine() error = %v", err)
	}
	defer engine.Close()

	r := router.New(&router.Config{
		Scheduling:     engine.Handler(),
		Session:        engine.Session,
		MetricsHandler: handler,
	})

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}
