// Package sim provides an in-process simulated robot.
//
// It honors the same contract as a real robot: one command at a time,
// a busy flag while performing, and cubes that may be missing.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/device"
)

// Config configures a simulated robot.
type Config struct {
	StepDelay        time.Duration      // Time each step takes to "complete"
	UnavailableCubes []device.ChannelID // Cubes that report as disconnected
}

// Robot is a simulated robot implementing device.Device.
type Robot struct {
	cfg Config

	mu         sync.Mutex
	performing bool
	forcedBusy bool
	available  map[device.ChannelID]bool
	lights     map[device.ChannelID]device.Color
	liftHeight float64
	history    []device.Step
	failures   map[device.StepKind]error
	closed     bool
}

var _ device.Device = (*Robot)(nil)

// New creates a simulated robot with all cubes connected except cfg.UnavailableCubes.
func New(cfg Config) *Robot {
	r := &Robot{
		cfg:       cfg,
		available: make(map[device.ChannelID]bool),
		lights:    make(map[device.ChannelID]device.Color),
		failures:  make(map[device.StepKind]error),
	}
	for _, id := range device.Cubes {
		r.available[id] = true
	}
	for _, id := range cfg.UnavailableCubes {
		r.available[id] = false
	}
	return r
}

// IsBusy reports whether the robot is performing a step or was forced busy.
func (r *Robot) IsBusy(_ context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.performing || r.forcedBusy
}

// SetBusy forces the busy flag, as if another client engaged the robot.
func (r *Robot) SetBusy(busy bool) {
	r.mu.Lock()
	r.forcedBusy = busy
	r.mu.Unlock()
}

// SetAvailable connects or disconnects a cube.
func (r *Robot) SetAvailable(id device.ChannelID, available bool) {
	r.mu.Lock()
	r.available[id] = available
	r.mu.Unlock()
}

// FailOn makes every following step of the given kind fail with err.
// A nil err clears the failure.
func (r *Robot) FailOn(kind device.StepKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, kind)
		return
	}
	r.failures[kind] = err
}

// Perform executes a step, taking cfg.StepDelay to complete.
func (r *Robot) Perform(ctx context.Context, step device.Step) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return device.ErrNotConnected
	}
	if r.performing || r.forcedBusy {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", step.Kind, device.ErrBusy)
	}
	if err := r.failures[step.Kind]; err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", step.Kind, err)
	}
	r.performing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.performing = false
		r.mu.Unlock()
	}()

	log.Debug().Str("step", step.String()).Msg("Simulated robot performing step")

	if r.cfg.StepDelay > 0 {
		timer := time.NewTimer(r.cfg.StepDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("%s interrupted: %w: %w", step.Kind, device.ErrDeviceFailure, ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, step)

	switch step.Kind {
	case device.StepAnimation, device.StepDrive, device.StepSpeak:
	case device.StepLift:
		r.liftHeight = step.Height
	case device.StepGetInPosition:
		r.liftHeight = 0
	case device.StepLightsOff:
		for _, id := range step.Channels {
			delete(r.lights, id)
		}
	default:
		return fmt.Errorf("%s: %w", step.Kind, device.ErrUnknownStep)
	}
	return nil
}

// Channel returns a connected cube.
func (r *Robot) Channel(_ context.Context, id device.ChannelID) (device.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available[id] {
		return nil, fmt.Errorf("%s: %w", id, device.ErrAccessoryUnavailable)
	}
	return &cube{robot: r, id: id}, nil
}

// Ready always succeeds until the robot is closed.
func (r *Robot) Ready(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrNotConnected
	}
	return nil
}

// Close disconnects the simulated robot.
func (r *Robot) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Lights returns a snapshot of the lit channels.
func (r *Robot) Lights() map[device.ChannelID]device.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[device.ChannelID]device.Color, len(r.lights))
	for id, c := range r.lights {
		out[id] = c
	}
	return out
}

// LiftHeight returns the current lift height.
func (r *Robot) LiftHeight() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liftHeight
}

// History returns the completed steps in order.
func (r *Robot) History() []device.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Step(nil), r.history...)
}

type cube struct {
	robot *Robot
	id    device.ChannelID
}

func (c *cube) ID() device.ChannelID { return c.id }

func (c *cube) SetColor(_ context.Context, color device.Color) error {
	c.robot.mu.Lock()
	defer c.robot.mu.Unlock()
	if !c.robot.available[c.id] {
		return fmt.Errorf("%s: %w", c.id, device.ErrAccessoryUnavailable)
	}
	if color == device.ColorOff {
		delete(c.robot.lights, c.id)
		return nil
	}
	c.robot.lights[c.id] = color
	return nil
}

func (c *cube) Off(_ context.Context) error {
	c.robot.mu.Lock()
	defer c.robot.mu.Unlock()
	if !c.robot.available[c.id] {
		return fmt.Errorf("%s: %w", c.id, device.ErrAccessoryUnavailable)
	}
	delete(c.robot.lights, c.id)
	return nil
}
