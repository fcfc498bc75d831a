package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/ledger"
)

// LedgerService runs periodic retention cleanup for the run ledger.
type LedgerService struct {
	cfg    config.LedgerConfig
	ledger *ledger.Ledger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg config.LedgerConfig, l *ledger.Ledger) *LedgerService {
	return &LedgerService{cfg: cfg, ledger: l}
}

// Start begins the cleanup loop.
func (s *LedgerService) Start(ctx context.Context) {
	if s.cfg.RetentionDays <= 0 {
		log.Info().Msg("Ledger retention disabled, keeping all runs")
		return
	}
	go s.runCleanup(ctx)
}

// runCleanup periodically cleans up old ledger entries.
func (s *LedgerService) runCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	interval := s.cfg.CleanupInterval.Duration()

	s.cleanup(ctx, retention)
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("Ledger cleanup interval not positive, cleaning once")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx, retention)
		}
	}
}

func (s *LedgerService) cleanup(ctx context.Context, retention time.Duration) {
	deleted, err := s.ledger.DeleteOlderThan(ctx, retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
	}
}
