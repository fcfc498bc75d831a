// Package device defines the robot action proxy: named, awaitable actions,
// a busy query and access to the robot's light channels (cubes).
//
// Drivers live in subpackages (sim, mqtt). Everything above this package
// talks to the robot only through the Device interface.
package device

import (
	"context"
	"errors"
)

// BusyReporter reports whether the robot is already executing a command.
type BusyReporter interface {
	IsBusy(ctx context.Context) bool
}

// Performer issues a single step and blocks until the robot reports completion.
//
// The returned error classifies the outcome (see OutcomeOf):
//   - nil: the step completed
//   - wraps ErrBusy: the robot refused because it is engaged elsewhere
//   - anything else: a device error
//
// Performers never retry.
type Performer interface {
	Perform(ctx context.Context, step Step) error
}

// ChannelProvider looks up an individually addressable light channel.
// Missing or disconnected channels return ErrAccessoryUnavailable.
type ChannelProvider interface {
	Channel(ctx context.Context, id ChannelID) (Channel, error)
}

// Channel is a light-emitting accessory (a cube).
type Channel interface {
	ID() ChannelID
	SetColor(ctx context.Context, c Color) error
	Off(ctx context.Context) error
}

// Device is the single shared handle to the robot.
type Device interface {
	BusyReporter
	Performer
	ChannelProvider

	// Ready returns nil when the robot is reachable.
	Ready(ctx context.Context) error
	Close() error
}

// Outcome is the result of a single Perform call.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeBusy
	OutcomeDeviceError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeBusy:
		return "busy"
	case OutcomeDeviceError:
		return "device_error"
	default:
		return "unknown"
	}
}

// OutcomeOf maps an error returned by Perform to an Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrBusy):
		return OutcomeBusy
	default:
		return OutcomeDeviceError
	}
}
