package scripts

import (
	"testing"

	"github.com/dokzlo13/cubehook/internal/command"
	"github.com/dokzlo13/cubehook/internal/device"
)

func TestInterpolate(t *testing.T) {
	ev := command.NewEvent("x", map[string]string{"project": "api", "status": "SUCCESS"})

	tests := []struct {
		tmpl string
		want string
	}{
		{"Build for {project} is {status}", "Build for api is SUCCESS"},
		{"{missing}!", "!"},
		{"no placeholders", "no placeholders"},
		{"{project}{project}", "apiapi"},
		{"{not valid}", "{not valid}"},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			if got := Interpolate(tt.tmpl, ev); got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestTemplateScript(t *testing.T) {
	lower := device.Speak("bye {who}")
	s := Template("greet", "/greet", []string{"who"}, []device.Step{
		device.Animation("{anim}"),
		device.Speak("hello {who}"),
		device.Lift(1),
	}, &lower)

	plan, err := s.Build(command.NewEvent("greet", map[string]string{"who": "bob", "anim": "Wave"}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Steps[0].Animation != "Wave" || plan.Steps[1].Text != "hello bob" || plan.Steps[2].Height != 1 {
		t.Errorf("steps = %v", plan.Steps)
	}
	if plan.Cleanup == nil || plan.Cleanup.Text != "bye bob" {
		t.Errorf("cleanup = %v", plan.Cleanup)
	}

	// the template itself is left untouched
	again, _ := s.Build(command.NewEvent("greet", map[string]string{"who": "amy"}))
	if again.Steps[1].Text != "hello amy" {
		t.Errorf("second build text = %q", again.Steps[1].Text)
	}
}
