package sequence

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/device"
)

// Sequencer drives a device through an ordered list of steps.
type Sequencer struct {
	dev    device.Device
	lights *LightEffect
}

// NewSequencer creates a sequencer for the given device.
func NewSequencer(dev device.Device) *Sequencer {
	return &Sequencer{
		dev:    dev,
		lights: NewLightEffect(dev),
	}
}

// Run performs steps in order and stops at the first step that does not complete.
//
// A busy refusal ends the run with AbortedBusy and leaves the device alone.
// Any other failure, or ctx cancellation between steps, ends it with
// AbortedError; cleanup then runs only if a step that changes visible state
// had been started. After a fully completed run cleanup always runs.
// Cleanup failures are logged and never change the result. A panicking step
// gets the same cleanup as a failed one before the panic continues.
func (s *Sequencer) Run(ctx context.Context, steps []device.Step, cleanup *device.Step) Result {
	touched := false

	defer func() {
		if r := recover(); r != nil {
			if touched {
				s.cleanup(ctx, cleanup)
			}
			panic(r)
		}
	}()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			log.Error().Err(err).Int("step", i).Msg("Sequence cancelled")
			if touched {
				s.cleanup(ctx, cleanup)
			}
			return AbortedError
		}

		if step.ChangesVisibleState() {
			touched = true
		}

		err := s.perform(ctx, step)
		switch device.OutcomeOf(err) {
		case device.OutcomeCompleted:
			continue
		case device.OutcomeBusy:
			log.Warn().Err(err).Int("step", i).Str("action", step.String()).Msg("Robot busy, abandoning sequence")
			return AbortedBusy
		default:
			log.Error().Err(err).Int("step", i).Str("action", step.String()).Msg("Step failed, abandoning sequence")
			if touched {
				s.cleanup(ctx, cleanup)
			}
			return AbortedError
		}
	}

	s.cleanup(ctx, cleanup)
	return Completed
}

func (s *Sequencer) perform(ctx context.Context, step device.Step) error {
	if step.Kind == device.StepLightEffect {
		s.lights.RunFor(ctx, step.Hold, step.Colors)
		return nil
	}
	return s.dev.Perform(ctx, step)
}

func (s *Sequencer) cleanup(ctx context.Context, step *device.Step) {
	if step == nil {
		return
	}
	if err := s.perform(context.WithoutCancel(ctx), *step); err != nil {
		log.Warn().Err(err).Str("action", step.String()).Msg("Cleanup step failed")
	}
}
