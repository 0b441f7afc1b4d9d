package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
	"marksync/internal/application/service"
	"marksync/internal/domain/model"
)

// Server is the thin serving surface in front of the sync core. Real
// record CRUD lives in the external system; this exposes health, open
// positions and a manual sync trigger, all behind the admission gates.
type Server struct {
	addr      string
	positions port.PositionRepository
	syncer    *service.PriceSyncer
	scopes    []string
	resolver  IdentityResolver

	defaultGate *service.AdmissionGate
	strictGate  *service.AdmissionGate
	ipGate      *service.AdmissionGate
}

type ServerDeps struct {
	Addr      string
	Positions port.PositionRepository
	Syncer    *service.PriceSyncer
	Scopes    []string
	Resolver  IdentityResolver

	DefaultGate *service.AdmissionGate
	StrictGate  *service.AdmissionGate
	IPGate      *service.AdmissionGate
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		addr:        deps.Addr,
		positions:   deps.Positions,
		syncer:      deps.Syncer,
		scopes:      deps.Scopes,
		resolver:    deps.Resolver,
		defaultGate: deps.DefaultGate,
		strictGate:  deps.StrictGate,
		ipGate:      deps.IPGate,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the full middleware chain. Every business route goes
// ip gate -> default gate -> handler; the sync trigger adds the strict
// gate on top.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/positions", s.gated(http.HandlerFunc(s.handlePositions), false))
	mux.Handle("/positions/sync", s.gated(http.HandlerFunc(s.handleSync), true))
	return mux
}

func (s *Server) gated(h http.Handler, strict bool) http.Handler {
	if strict && s.strictGate != nil {
		h = RateLimit(s.strictGate, s.resolver,
			"Too many requests to this endpoint, please try again later.")(h)
	}
	if s.defaultGate != nil {
		h = RateLimit(s.defaultGate, s.resolver,
			"Too many requests, please try again later.")(h)
	}
	if s.ipGate != nil {
		h = IPRateLimit(s.ipGate, s.resolver,
			"Too many requests from this IP, please try again later.")(h)
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" && len(s.scopes) > 0 {
		scope = s.scopes[0]
	}

	positions, err := s.positions.ListOpen(r.Context(), scope)
	if err != nil {
		log.Error().Str("scope", scope).Err(err).Msg("list open positions failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "failed to list positions",
		})
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"scope":   scope,
		"data":    positions,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries := make([]model.TickSummary, 0, len(s.scopes))
	for _, scope := range s.scopes {
		summaries = append(summaries, s.syncer.SyncOnce(r.Context(), scope))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    summaries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
