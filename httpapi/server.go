// Package httpapi exposes CRAG's operational surface over HTTP: health,
// feature/state inspection, export, and audit queries, plus a WebSocket
// stream of rotation deltas. Routing is grounded on the reference pack's
// go-chi/chi usage for this kind of small ops API.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexus-shell/crag/audit"
	"github.com/nexus-shell/crag/codec"
	"github.com/nexus-shell/crag/internal/logging"
	"github.com/nexus-shell/crag/rotation"
)

// Server holds the dependencies httpapi's handlers read from.
type Server struct {
	router *chi.Mux
	state  *rotation.RotationState
	audit  *audit.Log
	export func() codec.Export
	logger *logging.Logger
}

// NewServer wires up the chi router with CRAG's ops endpoints.
func NewServer(state *rotation.RotationState, log *audit.Log, exportFn func() codec.Export, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{router: chi.NewRouter(), state: state, audit: log, export: exportFn, logger: logger}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/v1/state", s.handleState)
	s.router.Get("/v1/features", s.handleFeatures)
	s.router.Get("/v1/export", s.handleExport)
	s.router.Get("/v1/audit", s.handleAuditQuery)
	s.router.Get("/v1/stream", s.handleStream)

	return s
}

// ServeHTTP lets Server itself be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, effTier := s.state.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":           snap.Tier.String(),
		"effective_tier": effTier.String(),
		"hardware_score": int(snap.HardwareScore),
		"bridge_online":  snap.BridgeOnline,
	})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	scope := rotation.Scope(r.URL.Query().Get("scope"))
	writeJSON(w, http.StatusOK, s.state.Features(scope))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.export())
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{Kind: audit.Kind(r.URL.Query().Get("kind"))}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			q.Limit = n
		}
	}
	if sinceStr := r.URL.Query().Get("since_ts"); sinceStr != "" {
		if ts, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			q.SinceTS = time.UnixMilli(ts)
		}
	}
	writeJSON(w, http.StatusOK, s.audit.Find(q))
}
