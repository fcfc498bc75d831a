package sequence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/cubehook/internal/device"
)

func TestSequencerRun(t *testing.T) {
	failure := fmt.Errorf("motor stalled: %w", device.ErrDeviceFailure)
	busy := fmt.Errorf("animation: %w", device.ErrBusy)
	lower := device.Lift(0)

	tests := []struct {
		name      string
		steps     []device.Step
		cleanup   *device.Step
		errs      map[device.StepKind]error
		want      Result
		wantKinds []device.StepKind
	}{
		{
			name:      "all complete runs cleanup",
			steps:     []device.Step{device.Animation("A"), device.Speak("hi")},
			cleanup:   &lower,
			want:      Completed,
			wantKinds: []device.StepKind{device.StepAnimation, device.StepSpeak, device.StepLift},
		},
		{
			name:      "all complete without cleanup",
			steps:     []device.Step{device.Animation("A")},
			want:      Completed,
			wantKinds: []device.StepKind{device.StepAnimation},
		},
		{
			name:      "busy stops without cleanup",
			steps:     []device.Step{device.Lift(1), device.Animation("A"), device.Speak("hi")},
			cleanup:   &lower,
			errs:      map[device.StepKind]error{device.StepAnimation: busy},
			want:      AbortedBusy,
			wantKinds: []device.StepKind{device.StepLift, device.StepAnimation},
		},
		{
			name:      "error before visible change skips cleanup",
			steps:     []device.Step{device.Animation("A"), device.Lift(1)},
			cleanup:   &lower,
			errs:      map[device.StepKind]error{device.StepAnimation: failure},
			want:      AbortedError,
			wantKinds: []device.StepKind{device.StepAnimation},
		},
		{
			name:      "error after visible change runs cleanup",
			steps:     []device.Step{device.GetInPosition(), device.Speak("hi"), device.Animation("A")},
			cleanup:   &lower,
			errs:      map[device.StepKind]error{device.StepSpeak: failure},
			want:      AbortedError,
			wantKinds: []device.StepKind{device.StepGetInPosition, device.StepSpeak, device.StepLift},
		},
		{
			name:      "failing visible step counts as entered",
			steps:     []device.Step{device.Animation("A"), device.GetInPosition()},
			cleanup:   &lower,
			errs:      map[device.StepKind]error{device.StepGetInPosition: failure},
			want:      AbortedError,
			wantKinds: []device.StepKind{device.StepAnimation, device.StepGetInPosition, device.StepLift},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			for k, err := range tt.errs {
				dev.errs[k] = err
			}

			got := NewSequencer(dev).Run(context.Background(), tt.steps, tt.cleanup)

			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantKinds, dev.kinds())
		})
	}
}

func TestSequencerCleanupFailureKeepsResult(t *testing.T) {
	dev := newFakeDevice()
	dev.errs[device.StepLift] = fmt.Errorf("lift jammed: %w", device.ErrDeviceFailure)
	lower := device.Lift(0)

	got := NewSequencer(dev).Run(context.Background(), []device.Step{device.Animation("A")}, &lower)

	require.Equal(t, Completed, got)
	require.Equal(t, []device.StepKind{device.StepAnimation, device.StepLift}, dev.kinds())
}

func TestSequencerCancelledBetweenSteps(t *testing.T) {
	dev := newFakeDevice()
	ctx, cancel := context.WithCancel(context.Background())
	dev.onPerform = func(s device.Step) {
		if s.Kind == device.StepGetInPosition {
			cancel()
		}
	}
	lower := device.Lift(0)

	got := NewSequencer(dev).Run(ctx, []device.Step{device.GetInPosition(), device.Speak("never")}, &lower)

	require.Equal(t, AbortedError, got)
	// cleanup still reaches the device with a live context
	require.Equal(t, []device.StepKind{device.StepGetInPosition, device.StepLift}, dev.kinds())
}

func TestSequencerLightEffectStep(t *testing.T) {
	dev := newFakeDevice(device.Cube1, device.Cube2)
	steps := []device.Step{
		device.Animation("A"),
		device.UniformLightEffect(20*time.Millisecond, device.ColorGreen),
	}

	got := NewSequencer(dev).Run(context.Background(), steps, nil)

	require.Equal(t, Completed, got)
	// the light effect goes through channels, never through Perform
	require.Equal(t, []device.StepKind{device.StepAnimation}, dev.kinds())
	for _, id := range []device.ChannelID{device.Cube1, device.Cube2} {
		ch := dev.cubes[id]
		require.Equal(t, 1, ch.sets, id)
		require.Equal(t, 1, ch.offs, id)
		require.False(t, ch.lit, id)
	}
}

func TestSequencerPanicStillCleansUp(t *testing.T) {
	t.Run("inside light effect", func(t *testing.T) {
		dev := newFakeDevice(device.Cube1, device.Cube2)
		dev.cubes[device.Cube2].setPanic = true
		lower := device.Lift(0)
		steps := []device.Step{
			device.GetInPosition(),
			device.UniformLightEffect(time.Hour, device.ColorRed),
		}

		got := NewGuard(dev).WithExclusiveAccess(context.Background(), func(ctx context.Context) Result {
			return NewSequencer(dev).Run(ctx, steps, &lower)
		})

		require.Equal(t, AbortedError, got)
		require.False(t, dev.cubes[device.Cube1].lit)
		require.Equal(t, 1, dev.cubes[device.Cube1].offs)
		require.Equal(t, []device.StepKind{device.StepGetInPosition, device.StepLift}, dev.kinds())
	})

	t.Run("inside perform", func(t *testing.T) {
		dev := newFakeDevice()
		dev.onPerform = func(s device.Step) {
			if s.Kind == device.StepSpeak {
				panic("speech engine crashed")
			}
		}
		lower := device.Lift(0)

		got := NewGuard(dev).WithExclusiveAccess(context.Background(), func(ctx context.Context) Result {
			return NewSequencer(dev).Run(ctx, []device.Step{device.Lift(1), device.Speak("hi")}, &lower)
		})

		require.Equal(t, AbortedError, got)
		require.Equal(t, []device.StepKind{device.StepLift, device.StepSpeak, device.StepLift}, dev.kinds())
	})
}
