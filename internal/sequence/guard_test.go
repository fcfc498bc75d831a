package sequence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/cubehook/internal/device"
)

func TestGuardBusyDeviceSkipsFn(t *testing.T) {
	dev := newFakeDevice()
	dev.busy = true
	g := NewGuard(dev)

	called := false
	got := g.WithExclusiveAccess(context.Background(), func(context.Context) Result {
		called = true
		return Completed
	})

	require.Equal(t, AbortedBusy, got)
	require.False(t, called)
	require.False(t, g.Held())
	require.Empty(t, dev.kinds())
}

func TestGuardReleasesOnEveryExit(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) Result
		want Result
	}{
		{name: "completed", fn: func(context.Context) Result { return Completed }, want: Completed},
		{name: "aborted_busy", fn: func(context.Context) Result { return AbortedBusy }, want: AbortedBusy},
		{name: "aborted_error", fn: func(context.Context) Result { return AbortedError }, want: AbortedError},
		{name: "panic", fn: func(context.Context) Result { panic("boom") }, want: AbortedError},
	}

	g := NewGuard(newFakeDevice())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.WithExclusiveAccess(context.Background(), func(ctx context.Context) Result {
				require.True(t, g.Held())
				return tt.fn(ctx)
			})
			require.Equal(t, tt.want, got)
			require.False(t, g.Held())
		})
	}

	// repeated failures never leak the token
	for i := 0; i < 100; i++ {
		g.WithExclusiveAccess(context.Background(), func(context.Context) Result { panic(i) })
	}
	tok, ok := g.TryAcquire(context.Background())
	require.True(t, ok)
	tok.Release()
}

func TestGuardRejectsOverlap(t *testing.T) {
	g := NewGuard(newFakeDevice())
	entered := make(chan struct{})
	release := make(chan struct{})

	done := make(chan Result)
	go func() {
		done <- g.WithExclusiveAccess(context.Background(), func(context.Context) Result {
			close(entered)
			<-release
			return Completed
		})
	}()
	<-entered

	called := false
	got := g.WithExclusiveAccess(context.Background(), func(context.Context) Result {
		called = true
		return Completed
	})
	require.Equal(t, AbortedBusy, got)
	require.False(t, called)

	close(release)
	require.Equal(t, Completed, <-done)
	require.False(t, g.Held())
}

func TestGuardConcurrentAcquireAdmitsOne(t *testing.T) {
	g := NewGuard(nil)
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			g.WithExclusiveAccess(context.Background(), func(context.Context) Result {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				inside.Add(-1)
				return Completed
			})
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), maxInside.Load())
}

func TestTokenReleaseIdempotent(t *testing.T) {
	g := NewGuard(nil)
	tok, ok := g.TryAcquire(context.Background())
	require.True(t, ok)

	tok.Release()
	second, ok := g.TryAcquire(context.Background())
	require.True(t, ok)

	// a stale release must not free the new holder
	tok.Release()
	require.True(t, g.Held())
	second.Release()
	require.False(t, g.Held())
}

var _ device.BusyReporter = (*fakeDevice)(nil)
