package device

import (
	"fmt"
	"sort"
	"time"
)

// StepKind identifies the action a Step performs.
type StepKind string

const (
	StepAnimation     StepKind = "animation"
	StepDrive         StepKind = "drive"
	StepLift          StepKind = "lift"
	StepSpeak         StepKind = "speak"
	StepGetInPosition StepKind = "get_in_position"
	StepLightsOff     StepKind = "lights_off"
	StepLightEffect   StepKind = "light_effect"
)

// ChannelID names a light channel on the robot.
type ChannelID string

// Cube channels known to the robot. Any of them may be absent at runtime.
const (
	Cube1 ChannelID = "cube1"
	Cube2 ChannelID = "cube2"
	Cube3 ChannelID = "cube3"
)

// Cubes lists the default light channels in a stable order.
var Cubes = []ChannelID{Cube1, Cube2, Cube3}

// Lift defaults used by the built-in sequences.
const (
	DefaultLiftMaxSpeed = 10.0
	DefaultLiftAccel    = 0.0
)

// Step is an immutable description of one robot action.
// Construct steps with the helper functions; do not modify a Step's Colors.
type Step struct {
	Kind StepKind

	// animation
	Animation string

	// drive
	DistanceMM float64
	SpeedMMPS  float64

	// lift
	Height   float64 // 0.0 (down) .. 1.0 (up)
	MaxSpeed float64
	Accel    float64

	// speak
	Text string

	// light_effect, lights_off
	Colors   map[ChannelID]Color
	Channels []ChannelID
	Hold     time.Duration
}

// Animation plays a named animation trigger.
func Animation(trigger string) Step {
	return Step{Kind: StepAnimation, Animation: trigger}
}

// Drive moves straight; negative distance drives backwards.
func Drive(distanceMM, speedMMPS float64) Step {
	return Step{Kind: StepDrive, DistanceMM: distanceMM, SpeedMMPS: speedMMPS}
}

// Lift moves the lift to the given height with default speed and acceleration.
func Lift(height float64) Step {
	return Step{Kind: StepLift, Height: height, MaxSpeed: DefaultLiftMaxSpeed, Accel: DefaultLiftAccel}
}

// Speak says the given text.
func Speak(text string) Step {
	return Step{Kind: StepSpeak, Text: text}
}

// GetInPosition raises the head and lowers the lift so the face is visible.
func GetInPosition() Step {
	return Step{Kind: StepGetInPosition}
}

// LightsOff turns the given channels off. No channels means all cubes.
func LightsOff(channels ...ChannelID) Step {
	if len(channels) == 0 {
		channels = Cubes
	}
	return Step{Kind: StepLightsOff, Channels: append([]ChannelID(nil), channels...)}
}

// LightEffect sets each channel to its color, holds for the duration and clears them.
func LightEffect(hold time.Duration, colors map[ChannelID]Color) Step {
	cp := make(map[ChannelID]Color, len(colors))
	for id, c := range colors {
		cp[id] = c
	}
	return Step{Kind: StepLightEffect, Colors: cp, Hold: hold}
}

// UniformLightEffect lights every channel with the same color.
func UniformLightEffect(hold time.Duration, c Color, channels ...ChannelID) Step {
	if len(channels) == 0 {
		channels = Cubes
	}
	colors := make(map[ChannelID]Color, len(channels))
	for _, id := range channels {
		colors[id] = c
	}
	return LightEffect(hold, colors)
}

// ChangesVisibleState reports whether the step alters state a user can see
// after the sequence ends (lift position, lights).
func (s Step) ChangesVisibleState() bool {
	switch s.Kind {
	case StepLift, StepGetInPosition, StepLightsOff, StepLightEffect:
		return true
	default:
		return false
	}
}

// ChannelIDs returns the channels of a light effect in a stable order.
func (s Step) ChannelIDs() []ChannelID {
	ids := make([]ChannelID, 0, len(s.Colors))
	for id := range s.Colors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Params returns the step parameters as a wire-friendly map.
func (s Step) Params() map[string]any {
	switch s.Kind {
	case StepAnimation:
		return map[string]any{"trigger": s.Animation}
	case StepDrive:
		return map[string]any{"distance_mm": s.DistanceMM, "speed_mmps": s.SpeedMMPS}
	case StepLift:
		return map[string]any{"height": s.Height, "max_speed": s.MaxSpeed, "accel": s.Accel}
	case StepSpeak:
		return map[string]any{"text": s.Text}
	case StepLightsOff:
		ch := make([]string, len(s.Channels))
		for i, id := range s.Channels {
			ch[i] = string(id)
		}
		return map[string]any{"channels": ch}
	case StepLightEffect:
		colors := make(map[string]any, len(s.Colors))
		for id, c := range s.Colors {
			colors[string(id)] = c.Hex()
		}
		return map[string]any{"colors": colors, "hold_ms": s.Hold.Milliseconds()}
	default:
		return map[string]any{}
	}
}

func (s Step) String() string {
	switch s.Kind {
	case StepAnimation:
		return fmt.Sprintf("animation(%s)", s.Animation)
	case StepDrive:
		return fmt.Sprintf("drive(%gmm @ %gmm/s)", s.DistanceMM, s.SpeedMMPS)
	case StepLift:
		return fmt.Sprintf("lift(%g)", s.Height)
	case StepSpeak:
		return fmt.Sprintf("speak(%q)", s.Text)
	case StepLightEffect:
		return fmt.Sprintf("light_effect(%d channels, %s)", len(s.Colors), s.Hold)
	default:
		return string(s.Kind)
	}
}
