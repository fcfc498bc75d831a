// Package webhook exposes command routes over HTTP.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/dispatch"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

// Dispatcher schedules a command and returns without waiting for it.
type Dispatcher interface {
	Handle(ctx context.Context, kind string, body []byte) (command.Event, error)
}

// Route binds a POST path to a command kind.
type Route struct {
	Path string
	Kind string
}

// RoutesFrom lists a route for every script that has a path.
func RoutesFrom(registry *scripts.Registry) []Route {
	var routes []Route
	for _, s := range registry.Scripts() {
		if s.Path() == "" {
			continue
		}
		routes = append(routes, Route{Path: s.Path(), Kind: s.Kind()})
	}
	return routes
}

// Server is an HTTP server that turns POST requests into scheduled commands.
type Server struct {
	addr       string
	cfg        config.ServerConfig
	dispatcher Dispatcher
	routes     []Route
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new webhook server.
func NewServer(cfg config.ServerConfig, dispatcher Dispatcher, routes []Route) *Server {
	s := &Server{
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		cfg:        cfg,
		dispatcher: dispatcher,
		routes:     routes,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

// Handler builds the HTTP router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	if s.limiter != nil {
		r.Use(rateLimitMiddleware(s.limiter))
	}
	r.Use(bodySizeLimitMiddleware(s.cfg.MaxBodyBytes))

	for _, route := range s.routes {
		r.Post(route.Path, s.handleCommand(route.Kind))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no command at "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "use POST")
	})

	return r
}

// Run starts the webhook server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Int("routes", len(s.routes)).Msg("Starting webhook server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// handleCommand reads the body, hands it to the dispatcher and acknowledges.
func (s *Server) handleCommand(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
				return
			}
			log.Error().Err(err).Str("kind", kind).Msg("Failed to read webhook request body")
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
			return
		}

		log.Debug().
			Str("path", r.URL.Path).
			Str("kind", kind).
			Int("body_len", len(body)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Received webhook request")

		if _, err := s.dispatcher.Handle(r.Context(), kind, body); err != nil {
			switch {
			case errors.Is(err, command.ErrMalformedPayload):
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			case errors.Is(err, dispatch.ErrUnknownCommand):
				writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			case errors.Is(err, dispatch.ErrNotScheduled):
				writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command could not be scheduled")
			default:
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
			return
		}

		writeOK(w)
	}
}
