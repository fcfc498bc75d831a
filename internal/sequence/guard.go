package sequence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/device"
)

// Guard makes sure at most one sequence drives the device at a time.
// Conflicting attempts are rejected, never queued.
type Guard struct {
	busy device.BusyReporter
	held atomic.Bool
}

// NewGuard creates a guard that also consults the device's own busy state.
func NewGuard(busy device.BusyReporter) *Guard {
	return &Guard{busy: busy}
}

// Token is proof of exclusive access. Release is safe to call more than once.
type Token struct {
	guard *Guard
	once  sync.Once
}

// Release gives up exclusive access.
func (t *Token) Release() {
	t.once.Do(func() {
		t.guard.held.Store(false)
	})
}

// TryAcquire returns a token if the device is idle and no other sequence holds one.
func (g *Guard) TryAcquire(ctx context.Context) (*Token, bool) {
	if g.busy != nil && g.busy.IsBusy(ctx) {
		return nil, false
	}
	if !g.held.CompareAndSwap(false, true) {
		return nil, false
	}
	return &Token{guard: g}, true
}

// Held reports whether a sequence currently holds the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}

// WithExclusiveAccess runs fn while holding the guard.
// If the device is busy or another sequence is running, fn is not called and
// AbortedBusy is returned. A panic in fn is recovered as AbortedError.
func (g *Guard) WithExclusiveAccess(ctx context.Context, fn func(ctx context.Context) Result) (result Result) {
	tok, ok := g.TryAcquire(ctx)
	if !ok {
		log.Warn().Msg("Robot is busy, sequence not started")
		return AbortedBusy
	}
	defer tok.Release()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("%v", r)).Msg("Sequence panicked")
			result = AbortedError
		}
	}()

	return fn(ctx)
}
