package scripts

import (
	"regexp"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/device"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate replaces {field} placeholders with the event's field values.
// Unknown fields become empty strings.
func Interpolate(tmpl string, ev command.Event) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return ev.Get(m[1 : len(m)-1])
	})
}

// Template creates a script whose speech text and animation names may
// reference event fields as {field}. All other step parameters are fixed.
func Template(kind, path string, required []string, steps []device.Step, cleanup *device.Step) *SimpleScript {
	fixed := append([]device.Step(nil), steps...)
	return NewScript(kind, path, required, func(ev command.Event) (Plan, error) {
		out := make([]device.Step, len(fixed))
		for i, s := range fixed {
			out[i] = interpolateStep(s, ev)
		}
		plan := Plan{Steps: out}
		if cleanup != nil {
			c := interpolateStep(*cleanup, ev)
			plan.Cleanup = &c
		}
		return plan, nil
	})
}

func interpolateStep(s device.Step, ev command.Event) device.Step {
	switch s.Kind {
	case device.StepSpeak:
		s.Text = Interpolate(s.Text, ev)
	case device.StepAnimation:
		s.Animation = Interpolate(s.Animation, ev)
	}
	return s
}
