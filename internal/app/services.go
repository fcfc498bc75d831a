package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/db"
	"github.com/dokzlo13/cubehook/internal/device"
	"github.com/dokzlo13/cubehook/internal/dispatch"
	"github.com/dokzlo13/cubehook/internal/eventbus"
	"github.com/dokzlo13/cubehook/internal/ledger"
	"github.com/dokzlo13/cubehook/internal/scripts"
	"github.com/dokzlo13/cubehook/internal/telemetry"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Robot session, shared by every sequence
	Device device.Device

	// Optional run history
	DB        *db.DB
	Ledger    *ledger.Ledger
	Telemetry *telemetry.Client

	// Command pipeline
	Registry   *scripts.Registry
	Bus        *eventbus.Bus
	Runner     *dispatch.Runner
	Dispatcher *dispatch.Dispatcher

	// High-level services
	Lua           *LuaService
	LedgerCleanup *LedgerService
	Health        *HealthService
	Webhook       *WebhookService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, configPath string) (*Services, error) {
	s := &Services{cfg: cfg}

	// Script registry: built-ins first, then the optional Lua script
	s.Registry = scripts.NewRegistry()
	if err := scripts.RegisterBuiltins(s.Registry, cfg.Sequences); err != nil {
		return nil, err
	}
	s.Lua = NewLuaService(cfg, configPath, s.Registry)
	if err := s.Lua.LoadScript(); err != nil {
		s.Close()
		return nil, err
	}

	var recorders dispatch.MultiRecorder

	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Ledger.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		s.LedgerCleanup = NewLedgerService(cfg.Ledger, s.Ledger)
		recorders = append(recorders, s.Ledger)
	}

	if cfg.Telemetry.Enabled {
		client, err := telemetry.Connect(cfg.Telemetry)
		if err != nil {
			// Telemetry is best-effort; the robot works without it
			log.Warn().Err(err).Msg("Telemetry unavailable, continuing without it")
		} else {
			s.Telemetry = client
			recorders = append(recorders, client)
		}
	}

	robot, err := NewDevice(cfg.Device)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Device = robot

	var recorder dispatch.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	// Cancelled sequences still finish their light hold and cleanup before the device closes
	s.Bus.SetCancelGrace(cfg.Sequences.LightHold.Duration() + cfg.GetShutdownTimeout())
	s.Runner = dispatch.NewRunner(s.Device, recorder)
	s.Dispatcher = dispatch.New(s.Registry, s.Bus, s.Runner)

	s.Health = NewHealthService(cfg, s.Device)
	s.Webhook = NewWebhookService(cfg, s.Registry, s.Dispatcher)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g. the webhook port is taken).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Device.Ready(ctx); err != nil {
		// Not fatal: commands are rejected as busy until the robot shows up
		log.Warn().Err(err).Msg("Robot not ready yet")
	}

	if s.LedgerCleanup != nil {
		s.LedgerCleanup.Start(ctx)
	}
	s.Health.Start(ctx)
	s.Webhook.Start(ctx, onFatalError)

	return nil
}

// Stop gracefully stops all services.
// The webhook server stops taking requests first, then queued sequences get
// up to the shutdown timeout to finish before they are cancelled.
func (s *Services) Stop() error {
	if s.Webhook != nil && s.Webhook.server != nil {
		s.Webhook.Wait()
	}

	var err error
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		if closeErr := s.Bus.Close(ctx); closeErr != nil && !errors.Is(closeErr, context.DeadlineExceeded) {
			err = closeErr
		}
		cancel()
	}

	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Device != nil {
		if err := s.Device.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close robot session")
		}
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Telemetry != nil {
		s.Telemetry.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
