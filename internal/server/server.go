// Package server is the HTTP relay between the approval gate and whatever
// messaging layer shows prompts to humans.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/governance"
	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/model"
)

const maxBodyBytes = 1 << 20

// Config holds HTTP server settings.
type Config struct {
	Addr    string
	Token   string // bearer token for /v1 endpoints, empty disables auth
	Version string
}

// Server serves approvals, dry-run classification, metrics and health.
type Server struct {
	cfg       Config
	gov       *governance.Governor
	approvals *approval.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	srv       *http.Server
}

// New builds the server. m and logger may be nil.
func New(cfg Config, gov *governance.Governor, approvals *approval.Registry, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{cfg: cfg, gov: gov, approvals: approvals, metrics: m, logger: logger}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/approvals", s.handleList)
	api.HandleFunc("GET /v1/approvals/{nonce}", s.handleGet)
	api.HandleFunc("POST /v1/approvals/{nonce}/approve", s.handleResolve(true))
	api.HandleFunc("POST /v1/approvals/{nonce}/deny", s.handleResolve(false))
	api.HandleFunc("POST /v1/classify", s.handleClassify)

	mux := http.NewServeMux()
	mux.Handle("/v1/", requireToken(s.cfg.Token, api))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": s.cfg.Version,
			"pending": s.approvals.Count(),
		})
	})

	var h http.Handler = mux
	h = logging(s.logger)(h)
	h = recovery(s.logger)(h)
	h = requestID(h)
	return otelhttp.NewHandler(h, "warden.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// ListenAndServe binds Config.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("approval relay listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown rejects every pending approval, then stops the HTTP server.
// Approvals cannot be answered once the relay is gone, so nothing may be
// left waiting on it.
func (s *Server) Shutdown(ctx context.Context) error {
	if n := s.approvals.RejectAll("approval relay shutting down"); n > 0 {
		s.logger.Warn("rejected pending approvals on shutdown", "count", n)
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"approvals": s.approvals.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.approvals.Get(r.PathValue("nonce"))
	if !ok {
		writeError(w, http.StatusNotFound, "no pending approval for nonce")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type resolveResponse struct {
	Nonce    string `json:"nonce"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleResolve(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce := approval.NormalizeNonce(r.PathValue("nonce"))
		if !s.approvals.Resolve(nonce, approved) {
			writeError(w, http.StatusNotFound, "no pending approval for nonce")
			return
		}
		s.logger.Info("approval resolved over http", "nonce", nonce, "approved", approved)
		writeJSON(w, http.StatusOK, resolveResponse{Nonce: nonce, Approved: approved})
	}
}

type classifyResponse struct {
	model.Classification
	Label            string `json:"label"`
	RequiresApproval bool   `json:"requires_approval"`
	Forbidden        bool   `json:"forbidden"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var call model.ToolCall
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&call); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if call.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := s.gov.Classify(r.Context(), call)
	writeJSON(w, http.StatusOK, classifyResponse{
		Classification:   c,
		Label:            c.Level.Label(),
		RequiresApproval: s.gov.NeedsApproval(c.Level),
		Forbidden:        model.Forbidden(c.Level),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
