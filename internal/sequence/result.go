// Package sequence runs scripted robot steps: the sequencer, the busy guard
// that keeps sequences from overlapping, and the timed light effect.
package sequence

// Result is the terminal state of a sequence run.
type Result int

const (
	Completed Result = iota
	AbortedBusy
	AbortedError
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case AbortedBusy:
		return "aborted_busy"
	case AbortedError:
		return "aborted_error"
	default:
		return "unknown"
	}
}
