package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/scripts"
	"github.com/dokzlo13/cubehook/internal/webhook"
)

// WebhookService wraps the webhook HTTP server.
type WebhookService struct {
	cfg        *config.Config
	registry   *scripts.Registry
	dispatcher webhook.Dispatcher
	server     *webhook.Server
	done       sync.WaitGroup
}

// NewWebhookService creates a new WebhookService.
// Routes are read from the registry when the service starts, so scripted
// sequences loaded after construction are served too.
func NewWebhookService(cfg *config.Config, registry *scripts.Registry, dispatcher webhook.Dispatcher) *WebhookService {
	return &WebhookService{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// Start begins the webhook server. A listen error is fatal.
func (s *WebhookService) Start(ctx context.Context, onFatalError func(error)) {
	routes := webhook.RoutesFrom(s.registry)
	for _, r := range routes {
		log.Debug().Str("path", r.Path).Str("kind", r.Kind).Msg("Webhook route")
	}
	s.server = webhook.NewServer(s.cfg.Server, s.dispatcher, routes)

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		if err := s.server.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("Webhook server error")
			if onFatalError != nil {
				onFatalError(fmt.Errorf("webhook server: %w", err))
			}
		}
	}()
}

// Wait blocks until the server has shut down.
func (s *WebhookService) Wait() {
	s.done.Wait()
}
