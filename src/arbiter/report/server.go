package report

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/storage"
	"github.com/recipe-arbiter/arbiter/src/arbiter/syncer"
)

// ServerOptions configures the read-only report server.
type ServerOptions struct {
	// AllowedOrigins feeds the CORS middleware. Empty allows any origin.
	AllowedOrigins []string
	// Storage, when set, is pinged by /health.
	Storage storage.ObjectStorage
	Logger  *slog.Logger
}

// Server publishes the latest diff table and sync outcomes over HTTP.
type Server struct {
	opts ServerOptions
	log  *slog.Logger

	mu       sync.RWMutex
	table    *diff.Table
	outcomes []syncer.Outcome
	updated  time.Time
}

func NewServer(opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{opts: opts, log: log}
}

// SetDiff replaces the published table.
func (s *Server) SetDiff(t *diff.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.updated = time.Now().UTC()
}

// SetOutcomes replaces the published sync outcomes.
func (s *Server) SetOutcomes(o []syncer.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = o
	s.updated = time.Now().UTC()
}

func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/diff", s.diff)
		r.Get("/diff/{recipe}", s.diffRow)
		r.Get("/outcomes", s.listOutcomes)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("Report server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Updated *time.Time        `json:"updated,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allOK := true
	if s.opts.Storage != nil {
		if err := s.opts.Storage.Ping(ctx); err != nil {
			checks["storage"] = "error: " + err.Error()
			allOK = false
		} else {
			checks["storage"] = "ok"
		}
	}

	s.mu.RLock()
	if s.table != nil {
		checks["diff"] = "ok"
	} else {
		checks["diff"] = "pending"
	}
	resp := healthResponse{Status: "ok", Checks: checks}
	if !s.updated.IsZero() {
		t := s.updated
		resp.Updated = &t
	}
	s.mu.RUnlock()

	status := http.StatusOK
	if !allOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) diff(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	t := s.table
	s.mu.RUnlock()
	if t == nil {
		writeError(w, http.StatusServiceUnavailable, "diff not computed yet")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) diffRow(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	t := s.table
	s.mu.RUnlock()
	if t == nil {
		writeError(w, http.StatusServiceUnavailable, "diff not computed yet")
		return
	}
	row, ok := t.Lookup(chi.URLParam(r, "recipe"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) listOutcomes(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	o := s.outcomes
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, NewOutcomeReport(o))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
