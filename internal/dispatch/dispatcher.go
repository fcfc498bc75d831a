// Package dispatch accepts command events, schedules their sequences in the
// background and runs them against the robot.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/eventbus"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

var (
	// ErrUnknownCommand is returned for a kind no script is registered for.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotScheduled is returned when a valid command could not be queued.
	ErrNotScheduled = errors.New("command not scheduled")
)

// task is the bus payload for a scheduled command.
type task struct {
	script scripts.Script
	event  command.Event
}

// Dispatcher validates commands and hands them to the background runner.
type Dispatcher struct {
	registry *scripts.Registry
	bus      *eventbus.Bus
	runner   *Runner
}

// New creates a dispatcher and subscribes its runner to the bus.
func New(registry *scripts.Registry, bus *eventbus.Bus, runner *Runner) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		bus:      bus,
		runner:   runner,
	}
	bus.Subscribe(eventbus.EventTypeCommand, d.handleEvent)
	return d
}

// Handle parses body for the given command kind and schedules its sequence.
// It returns as soon as the work is queued; the sequence outcome is never
// reported back to the caller.
func (d *Dispatcher) Handle(ctx context.Context, kind string, body []byte) (command.Event, error) {
	script, ok := d.registry.Get(kind)
	if !ok {
		return command.Event{}, fmt.Errorf("%q: %w", kind, ErrUnknownCommand)
	}

	ev, err := command.Parse(script.Schema(), body)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Rejected command")
		return command.Event{}, err
	}

	if err := ctx.Err(); err != nil {
		return command.Event{}, fmt.Errorf("%w: %w", ErrNotScheduled, err)
	}

	err = d.bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeCommand,
		ID:      ev.ID(),
		Payload: task{script: script, event: ev},
	})
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.ID()).Str("kind", kind).Msg("Failed to schedule command")
		return command.Event{}, fmt.Errorf("%w: %w", ErrNotScheduled, err)
	}

	log.Info().
		Str("event_id", ev.ID()).
		Str("kind", kind).
		Interface("fields", ev.Fields()).
		Msg("Command scheduled")
	return ev, nil
}

func (d *Dispatcher) handleEvent(ctx context.Context, e eventbus.Event) {
	t, ok := e.Payload.(task)
	if !ok {
		log.Error().Str("event_id", e.ID).Msg("Unexpected command payload")
		return
	}
	d.runner.Run(ctx, t.script, t.event)
}
