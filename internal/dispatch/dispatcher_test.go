package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/device"
	"github.com/dokzlo13/cubehook/internal/device/sim"
	"github.com/dokzlo13/cubehook/internal/eventbus"
	"github.com/dokzlo13/cubehook/internal/scripts"
	"github.com/dokzlo13/cubehook/internal/sequence"
)

const testHold = 80 * time.Millisecond

// chanRecorder delivers every recorded run on a channel.
type chanRecorder chan Run

func (c chanRecorder) Record(_ context.Context, run Run) error {
	c <- run
	return nil
}

func (c chanRecorder) next(t *testing.T) Run {
	t.Helper()
	select {
	case run := <-c:
		return run
	case <-time.After(2 * time.Second):
		t.Fatal("no run recorded")
		return Run{}
	}
}

// blockingRobot blocks every Perform until release is closed.
type blockingRobot struct {
	*sim.Robot
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRobot) Perform(ctx context.Context, step device.Step) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return fmt.Errorf("interrupted: %w", device.ErrDeviceFailure)
	}
	return b.Robot.Perform(ctx, step)
}

func newTestDispatcher(t *testing.T, dev device.Device, rec Recorder) (*Dispatcher, *eventbus.Bus) {
	t.Helper()
	registry := scripts.NewRegistry()
	require.NoError(t, scripts.RegisterBuiltins(registry, config.SequencesConfig{
		LightHold:      config.Duration(testHold),
		DriveDistMM:    150,
		DriveSpeedMMPS: 50,
	}))
	bus := eventbus.NewWithConfig(2, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})
	return New(registry, bus, NewRunner(dev, rec)), bus
}

func TestHandleBuildSuccessWhileIdle(t *testing.T) {
	robot := sim.New(sim.Config{UnavailableCubes: []device.ChannelID{device.Cube3}})
	rec := make(chanRecorder, 1)
	d, _ := newTestDispatcher(t, robot, rec)

	ev, err := d.Handle(context.Background(), scripts.KindBuildNotification, []byte(`{"project":"api","status":"SUCCESS"}`))
	require.NoError(t, err)
	require.Equal(t, "api", ev.Get("project"))

	// cubes turn green during the hold
	require.Eventually(t, func() bool {
		lights := robot.Lights()
		return len(lights) == 2 && lights[device.Cube1] == device.ColorGreen && lights[device.Cube2] == device.ColorGreen
	}, time.Second, 5*time.Millisecond)

	run := rec.next(t)
	require.Equal(t, ev.ID(), run.EventID)
	require.Equal(t, sequence.Completed, run.Result)
	require.GreaterOrEqual(t, run.Duration, testHold)
	require.Empty(t, robot.Lights())
	require.Zero(t, robot.LiftHeight())

	var spoken string
	for _, s := range robot.History() {
		if s.Kind == device.StepSpeak {
			spoken = s.Text
		}
	}
	require.Equal(t, "Build for api is successful", spoken)
}

func TestHandleEmptyStatusFallsBackToOther(t *testing.T) {
	robot := sim.New(sim.Config{})
	rec := make(chanRecorder, 1)
	d, _ := newTestDispatcher(t, robot, rec)

	_, err := d.Handle(context.Background(), scripts.KindBuildNotification, []byte(`{"project":"api","status":""}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lights := robot.Lights()
		return len(lights) == 3 && lights[device.Cube1] == device.ColorBlue
	}, time.Second, 5*time.Millisecond)

	run := rec.next(t)
	require.Equal(t, sequence.Completed, run.Result)

	var spoken string
	for _, s := range robot.History() {
		if s.Kind == device.StepSpeak {
			spoken = s.Text
		}
		require.NotEqual(t, scripts.AnimHappy, s.Animation)
		require.NotEqual(t, scripts.AnimFailure, s.Animation)
	}
	require.Equal(t, "Build for api is completed", spoken)
}

func TestHandleWhileBusy(t *testing.T) {
	robot := sim.New(sim.Config{})
	robot.SetBusy(true)
	rec := make(chanRecorder, 1)
	d, _ := newTestDispatcher(t, robot, rec)

	_, err := d.Handle(context.Background(), scripts.KindRaiseHand, nil)
	require.NoError(t, err)

	run := rec.next(t)
	require.Equal(t, sequence.AbortedBusy, run.Result)
	require.Empty(t, robot.History())
	require.Empty(t, robot.Lights())
}

func TestHandleMissingStatus(t *testing.T) {
	robot := sim.New(sim.Config{})
	rec := make(chanRecorder, 1)
	d, _ := newTestDispatcher(t, robot, rec)

	_, err := d.Handle(context.Background(), scripts.KindBuildNotification, []byte(`{"project":"api"}`))
	require.ErrorIs(t, err, command.ErrMalformedPayload)

	select {
	case run := <-rec:
		t.Fatalf("unexpected run %+v", run)
	case <-time.After(50 * time.Millisecond):
	}
	require.Empty(t, robot.History())
}

func TestHandleUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t, sim.New(sim.Config{}), nil)

	_, err := d.Handle(context.Background(), "dance", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestHandleReturnsBeforeStepResolves(t *testing.T) {
	robot := &blockingRobot{
		Robot:   sim.New(sim.Config{}),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	rec := make(chanRecorder, 1)
	d, _ := newTestDispatcher(t, robot, rec)

	start := time.Now()
	_, err := d.Handle(context.Background(), scripts.KindMoveForward, nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	// the step is still pending after Handle returned
	select {
	case <-robot.entered:
	case <-time.After(time.Second):
		t.Fatal("step never started")
	}
	select {
	case run := <-rec:
		t.Fatalf("run finished before release: %+v", run)
	default:
	}

	close(robot.release)
	require.Equal(t, sequence.Completed, rec.next(t).Result)
}

func TestOverlappingCommandsRejected(t *testing.T) {
	robot := &blockingRobot{
		Robot:   sim.New(sim.Config{}),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	rec := make(chanRecorder, 2)
	d, _ := newTestDispatcher(t, robot, rec)

	_, err := d.Handle(context.Background(), scripts.KindRaiseHand, nil)
	require.NoError(t, err)
	<-robot.entered

	_, err = d.Handle(context.Background(), scripts.KindDropHand, nil)
	require.NoError(t, err)
	second := rec.next(t)
	require.Equal(t, scripts.KindDropHand, second.Kind)
	require.Equal(t, sequence.AbortedBusy, second.Result)

	close(robot.release)
	require.Equal(t, sequence.Completed, rec.next(t).Result)
}

func TestHandleAfterBusClosed(t *testing.T) {
	d, bus := newTestDispatcher(t, sim.New(sim.Config{}), nil)
	require.NoError(t, bus.Close(context.Background()))

	_, err := d.Handle(context.Background(), scripts.KindRaiseHand, nil)
	require.ErrorIs(t, err, ErrNotScheduled)
	require.ErrorIs(t, err, eventbus.ErrClosed)
}

func TestRunnerRepeatedFailuresDoNotLeakGuard(t *testing.T) {
	robot := sim.New(sim.Config{})
	robot.FailOn(device.StepAnimation, errors.New("servo fault"))
	runner := NewRunner(robot, nil)
	script, _ := scriptFor(t, scripts.KindDropHand)

	for i := 0; i < 20; i++ {
		got := runner.Run(context.Background(), script, command.NewEvent(scripts.KindDropHand, nil))
		require.Equal(t, sequence.AbortedError, got)
	}

	robot.FailOn(device.StepAnimation, nil)
	got := runner.Run(context.Background(), script, command.NewEvent(scripts.KindDropHand, nil))
	require.Equal(t, sequence.Completed, got)
}

func TestRunnerBuildErrorAndPanic(t *testing.T) {
	robot := sim.New(sim.Config{})
	rec := make(chanRecorder, 2)
	runner := NewRunner(robot, rec)

	broken := scripts.NewScript("broken", "/broken", nil, func(command.Event) (scripts.Plan, error) {
		return scripts.Plan{}, errors.New("no plan")
	})
	require.Equal(t, sequence.AbortedError, runner.Run(context.Background(), broken, command.NewEvent("broken", nil)))
	require.Equal(t, sequence.AbortedError, rec.next(t).Result)

	panicky := scripts.NewScript("panicky", "/panicky", nil, func(command.Event) (scripts.Plan, error) {
		panic("boom")
	})
	require.Equal(t, sequence.AbortedError, runner.Run(context.Background(), panicky, command.NewEvent("panicky", nil)))
	require.Equal(t, sequence.AbortedError, rec.next(t).Result)

	fixed := scripts.Fixed("ok", "/ok", []device.Step{device.Animation("A")}, nil)
	require.Equal(t, sequence.Completed, runner.Run(context.Background(), fixed, command.NewEvent("ok", nil)))
}

func scriptFor(t *testing.T, kind string) (scripts.Script, *scripts.Registry) {
	t.Helper()
	registry := scripts.NewRegistry()
	require.NoError(t, scripts.RegisterBuiltins(registry, config.SequencesConfig{DriveDistMM: 150, DriveSpeedMMPS: 50}))
	s, ok := registry.Get(kind)
	require.True(t, ok)
	return s, registry
}

func TestMultiRecorderContinuesOnError(t *testing.T) {
	var calls []string
	m := MultiRecorder{
		RecorderFunc(func(context.Context, Run) error {
			calls = append(calls, "a")
			return errors.New("disk full")
		}),
		nil,
		RecorderFunc(func(context.Context, Run) error {
			calls = append(calls, "b")
			return nil
		}),
	}

	require.NoError(t, m.Record(context.Background(), Run{EventID: "e"}))
	require.Equal(t, []string{"a", "b"}, calls)
}
