package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marksync/internal/application/port"
	"marksync/internal/application/service"
	"marksync/internal/domain/model"
	"marksync/internal/infrastructure/ratelimit"
)

type stubRepo struct {
	positions map[string][]model.Position
	updates   int
}

func (s *stubRepo) ListOpen(ctx context.Context, scope string) ([]model.Position, error) {
	return s.positions[scope], nil
}

func (s *stubRepo) UpdateCurrentPrice(ctx context.Context, id string, price float64) error {
	s.updates++
	return nil
}

func (s *stubRepo) Close() error { return nil }

type fixedRouter struct{ price float64 }

func (f fixedRouter) Quote(ctx context.Context, market, symbol string) (float64, error) {
	if f.price <= 0 {
		return 0, port.ErrQuoteUnavailable
	}
	return f.price, nil
}

func newTestServer(repo *stubRepo) *Server {
	store := ratelimit.NewMemoryStore()
	return NewServer(ServerDeps{
		Addr:        ":0",
		Positions:   repo,
		Syncer:      service.NewPriceSyncer(repo, fixedRouter{price: 101.5}),
		Scopes:      []string{"trades", "vip_trades"},
		Resolver:    HeaderIdentityResolver("X-User-ID"),
		DefaultGate: service.NewAdmissionGate("default", store, 100, time.Minute),
		StrictGate:  service.NewAdmissionGate("strict", store, 100, time.Minute),
		IPGate:      service.NewAdmissionGate("ip", store, 100, time.Minute),
	})
}

func TestServerListsOpenPositions(t *testing.T) {
	repo := &stubRepo{positions: map[string][]model.Position{
		"trades": {{ID: "p1", Scope: "trades", Market: "usa", Symbol: "AAPL"}},
	}}
	handler := newTestServer(repo).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/positions?scope=trades", nil)
	req.Header.Set("X-User-ID", "42")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success bool             `json:"success"`
		Scope   string           `json:"scope"`
		Data    []model.Position `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if !body.Success || body.Scope != "trades" || len(body.Data) != 1 || body.Data[0].ID != "p1" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestServerDefaultsToFirstScope(t *testing.T) {
	repo := &stubRepo{positions: map[string][]model.Position{}}
	handler := newTestServer(repo).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))

	var body struct {
		Scope string           `json:"scope"`
		Data  []model.Position `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if body.Scope != "trades" {
		t.Errorf("scope = %q, want default first scope", body.Scope)
	}
	if body.Data == nil {
		t.Error("data = null, want empty array")
	}
}

func TestServerSyncTriggerRunsAllScopes(t *testing.T) {
	repo := &stubRepo{positions: map[string][]model.Position{
		"trades":     {{ID: "p1", Scope: "trades", Market: "usa", Symbol: "AAPL"}},
		"vip_trades": {{ID: "p2", Scope: "vip_trades", Market: "india", Symbol: "TCS"}},
	}}
	handler := newTestServer(repo).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/positions/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data []model.TickSummary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("summaries = %d, want one per scope", len(body.Data))
	}
	if repo.updates != 2 {
		t.Errorf("writebacks = %d, want 2", repo.updates)
	}
}

func TestServerSyncTriggerRejectsGet(t *testing.T) {
	handler := newTestServer(&stubRepo{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions/sync", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServerHealthBypassesGates(t *testing.T) {
	handler := newTestServer(&stubRepo{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("health endpoint went through a gate")
	}
}
