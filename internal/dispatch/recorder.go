package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/sequence"
)

// Run describes one finished sequence run.
type Run struct {
	EventID    string
	Kind       string
	Fields     map[string]string
	Result     sequence.Result
	Steps      int
	ReceivedAt time.Time
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder keeps a history of finished runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// MultiRecorder fans a run out to several recorders.
// Failures are logged and do not stop the others.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, run Run) error {
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, run); err != nil {
			log.Warn().Err(err).Str("event_id", run.EventID).Msg("Failed to record sequence run")
		}
	}
	return nil
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, run Run) error

func (f RecorderFunc) Record(ctx context.Context, run Run) error {
	return f(ctx, run)
}
