package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/internal/store"
	"github.com/manash/stitchgen/pkg/models"
)

// maxBodyBytes bounds request bodies, which may carry a data URI image.
const maxBodyBytes = 25 << 20

type EditorFactory func(seed models.GenerationResult) *pipeline.Editor

type Config struct {
	Selection *selection.State
	Results   *store.Results
	Generator *pipeline.Generator
	NewEditor EditorFactory
	Logger    zerolog.Logger
}

// Server exposes the selection, result list and both generation flows over
// HTTP. Editors are kept per seed result for the life of the process.
type Server struct {
	selection *selection.State
	results   *store.Results
	generator *pipeline.Generator
	newEditor EditorFactory
	logger    zerolog.Logger

	mu      sync.Mutex
	editors map[string]*pipeline.Editor
}

func New(cfg *Config) *Server {
	return &Server{
		selection: cfg.Selection,
		results:   cfg.Results,
		generator: cfg.Generator,
		newEditor: cfg.NewEditor,
		logger:    cfg.Logger,
		editors:   make(map[string]*pipeline.Editor),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(s.logger),
	)

	r.Get("/healthz", s.health)

	r.Route("/selection", func(r chi.Router) {
		r.Get("/", s.getSelection)
		r.Put("/", s.putSelection)
	})

	r.Route("/results", func(r chi.Router) {
		r.Get("/", s.listResults)
		r.Delete("/", s.clearResults)
		r.Get("/{id}", s.getResult)
		r.Get("/{id}/edit", s.getConversation)
		r.Post("/{id}/edit", s.edit)
	})

	r.Post("/generate", s.generate)

	return r
}

// editorFor returns the open editor for id, opening one from the store when
// needed.
func (s *Server) editorFor(id string, create bool) (*pipeline.Editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ed, ok := s.editors[id]; ok {
		return ed, true
	}
	if !create {
		return nil, false
	}
	seed, ok := s.results.Get(id)
	if !ok {
		return nil, false
	}
	ed := s.newEditor(seed)
	s.editors[id] = ed
	return ed, true
}

// dropEditors forgets every open editor. Used when the history is cleared.
func (s *Server) dropEditors() {
	s.mu.Lock()
	s.editors = make(map[string]*pipeline.Editor)
	s.mu.Unlock()
}

func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
