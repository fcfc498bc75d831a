package scripts

import (
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/device"
)

// Built-in command kinds
const (
	KindMoveForward       = "move-forward"
	KindMoveBackward      = "move-backward"
	KindRaiseHand         = "raise-hand"
	KindDropHand          = "drop-hand"
	KindBuildNotification = "build-notification"
)

// Animation triggers used by the built-in scripts
const (
	AnimStartled = "ReactToPokeStartled"
	AnimHappy    = "PeekABooGetOutHappy"
	AnimFailure  = "FrustratedByFailure"
	AnimSneeze   = "CodeLabSneeze"
)

// Reaction is what the robot says, plays and shows for a build status.
type Reaction struct {
	Text      string
	Animation string // empty = no status animation
	Color     device.Color
}

// ReactionFor selects the reaction for a build status.
func ReactionFor(project, status string) Reaction {
	switch command.ClassifyStatus(status) {
	case command.StatusSuccess:
		return Reaction{
			Text:      fmt.Sprintf("Build for %s is successful", project),
			Animation: AnimHappy,
			Color:     device.ColorGreen,
		}
	case command.StatusFailure:
		return Reaction{
			Text:      fmt.Sprintf("Build for %s is failed", project),
			Animation: AnimFailure,
			Color:     device.ColorRed,
		}
	default:
		return Reaction{
			Text:  strings.TrimSuffix(fmt.Sprintf("Build for %s is completed %s", project, status), " "),
			Color: device.ColorBlue,
		}
	}
}

// BuildNotification builds the steps announcing a CI build result.
// The cubes stay lit in the status color for hold.
func BuildNotification(project, status string, hold time.Duration) Plan {
	r := ReactionFor(project, status)

	steps := []device.Step{
		device.GetInPosition(),
		device.Animation(AnimStartled),
		device.Speak(r.Text),
	}
	if r.Animation != "" {
		steps = append(steps, device.Animation(r.Animation))
	}
	steps = append(steps, device.UniformLightEffect(hold, r.Color))

	lower := device.Lift(0)
	return Plan{Steps: steps, Cleanup: &lower}
}

// Builtins returns the scripts served out of the box.
func Builtins(cfg config.SequencesConfig) []Script {
	hold := cfg.LightHold.Duration()

	return []Script{
		Fixed(KindMoveForward, "/moveForward", []device.Step{
			device.Animation(AnimStartled),
			device.Drive(cfg.DriveDistMM, cfg.DriveSpeedMMPS),
		}, nil),
		Fixed(KindMoveBackward, "/moveBackward", []device.Step{
			device.Animation(AnimStartled),
			device.Drive(-cfg.DriveDistMM, cfg.DriveSpeedMMPS),
		}, nil),
		Fixed(KindRaiseHand, "/raiseHand", []device.Step{
			device.Animation(AnimStartled),
			device.Lift(1),
		}, nil),
		Fixed(KindDropHand, "/dropHand", []device.Step{
			device.Animation(AnimStartled),
			device.Lift(0),
			device.Animation(AnimSneeze),
		}, nil),
		NewScript(KindBuildNotification, "/iftttJenkins", []string{"project", "status"},
			func(ev command.Event) (Plan, error) {
				return BuildNotification(ev.Get("project"), ev.Get("status"), hold), nil
			}),
	}
}

// RegisterBuiltins registers every built-in script.
func RegisterBuiltins(r *Registry, cfg config.SequencesConfig) error {
	for _, s := range Builtins(cfg) {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}
