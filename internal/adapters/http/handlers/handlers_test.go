package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jwinr/TechNexus-sub000/internal/adapters/storage/memory"
	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

func TestTestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	TestHandler(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["message"] != "Request successful" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestStatsHandler(t *testing.T) {
	store, err := memory.NewCounterStore(100, time.Minute, memory.WithShards(4))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_, _ = store.Check(10, "10.0.0.1")
	_, _ = store.Check(10, "10.0.0.2")

	stats := memory.NewStatsStorage()
	_ = stats.Record(context.Background(), domain.AdmissionEvent{Verdict: domain.VerdictAdmitted, Method: "GET", Path: "public"})

	h := StatsHandler(store, 60000, stats, func() int64 { return 3 })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/admission/stats", nil))

	var snap StatsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.Store.Tracked != 2 || snap.Store.Capacity != 100 || snap.Store.Shards != 4 {
		t.Fatalf("unexpected store snapshot %+v", snap.Store)
	}
	if snap.Total == nil || snap.Total.Admitted != 1 {
		t.Fatalf("unexpected totals %+v", snap.Total)
	}
	if snap.ByRoute["GET public"].Admitted != 1 {
		t.Fatalf("unexpected by-route counters %+v", snap.ByRoute)
	}
	if snap.Dropped != 3 || snap.WindowMS != 60000 {
		t.Fatalf("unexpected dropped/window %d/%d", snap.Dropped, snap.WindowMS)
	}
}

func TestStatsHandler_WithoutMemoryStats(t *testing.T) {
	store, err := memory.NewCounterStore(10, time.Minute)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	w := httptest.NewRecorder()
	StatsHandler(store, 60000, nil, nil)(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var snap StatsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.Total != nil || snap.ByRoute != nil {
		t.Fatalf("expected no admission counters, got %+v", snap)
	}
}
