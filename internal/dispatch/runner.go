package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/device"
	"github.com/dokzlo13/cubehook/internal/scripts"
	"github.com/dokzlo13/cubehook/internal/sequence"
)

// Runner executes a script for an event under the busy guard.
type Runner struct {
	guard     *sequence.Guard
	sequencer *sequence.Sequencer
	recorder  Recorder
}

// NewRunner creates a runner for the device. recorder may be nil.
func NewRunner(dev device.Device, recorder Recorder) *Runner {
	return &Runner{
		guard:     sequence.NewGuard(dev),
		sequencer: sequence.NewSequencer(dev),
		recorder:  recorder,
	}
}

// Run builds the script's plan for ev and runs it. It never panics and
// never returns an error: the outcome is logged and recorded.
func (r *Runner) Run(ctx context.Context, script scripts.Script, ev command.Event) sequence.Result {
	started := time.Now()
	steps := 0

	result := r.guard.WithExclusiveAccess(ctx, func(ctx context.Context) sequence.Result {
		plan, err := script.Build(ev)
		if err != nil {
			log.Error().Err(err).Str("event_id", ev.ID()).Str("kind", ev.Kind()).Msg("Failed to build sequence")
			return sequence.AbortedError
		}
		steps = len(plan.Steps)
		return r.sequencer.Run(ctx, plan.Steps, plan.Cleanup)
	})

	elapsed := time.Since(started)
	logOutcome(ev, result, elapsed)

	if r.recorder != nil {
		run := Run{
			EventID:    ev.ID(),
			Kind:       ev.Kind(),
			Fields:     ev.Fields(),
			Result:     result,
			Steps:      steps,
			ReceivedAt: ev.ReceivedAt(),
			StartedAt:  started,
			Duration:   elapsed,
		}
		if err := r.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID()).Msg("Failed to record sequence run")
		}
	}

	return result
}

func logOutcome(ev command.Event, result sequence.Result, elapsed time.Duration) {
	var e *zerolog.Event
	switch result {
	case sequence.Completed:
		e = log.Info()
	case sequence.AbortedBusy:
		e = log.Warn()
	default:
		e = log.Error()
	}
	e.Str("event_id", ev.ID()).
		Str("kind", ev.Kind()).
		Str("result", result.String()).
		Dur("duration", elapsed).
		Msg("Sequence finished")
}
