package modules

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cubehook/internal/device"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

// RobotModule provides robot.define() and the step constructors to Lua.
//
// Steps are plain tables ({kind = "lift", height = 1}) converted to
// device.Step at define time, so running a sequence never touches the VM.
type RobotModule struct {
	registry    *scripts.Registry
	defaultHold time.Duration
	defined     []string
}

// NewRobotModule creates a robot module that registers into registry.
// defaultHold is used by robot.lights() when no duration is given.
func NewRobotModule(registry *scripts.Registry, defaultHold time.Duration) *RobotModule {
	return &RobotModule{
		registry:    registry,
		defaultHold: defaultHold,
	}
}

// Loader is the module loader for Lua
func (m *RobotModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))

	L.SetField(mod, "animation", L.NewFunction(m.animation))
	L.SetField(mod, "drive", L.NewFunction(m.drive))
	L.SetField(mod, "lift", L.NewFunction(m.lift))
	L.SetField(mod, "say", L.NewFunction(m.say))
	L.SetField(mod, "get_in_position", L.NewFunction(m.getInPosition))
	L.SetField(mod, "lights", L.NewFunction(m.lights))
	L.SetField(mod, "lights_off", L.NewFunction(m.lightsOff))

	cubes := L.NewTable()
	for _, id := range device.Cubes {
		cubes.Append(lua.LString(id))
	}
	L.SetField(mod, "cubes", cubes)

	L.Push(mod)
	return 1
}

// Defined returns the kinds registered by the script, in order.
func (m *RobotModule) Defined() []string {
	return append([]string(nil), m.defined...)
}

// define(kind, path, {required = {...}, steps = {...}, cleanup = step})
func (m *RobotModule) define(L *lua.LState) int {
	kind := L.CheckString(1)
	path := L.CheckString(2)
	opts := L.CheckTable(3)

	if !strings.HasPrefix(path, "/") {
		L.ArgError(2, "path must start with /")
		return 0
	}

	var required []string
	if tbl, ok := opts.RawGetString("required").(*lua.LTable); ok {
		var err error
		if required, err = stringList(tbl); err != nil {
			L.ArgError(3, "required: "+err.Error())
			return 0
		}
	}

	stepsTbl, ok := opts.RawGetString("steps").(*lua.LTable)
	if !ok || stepsTbl.Len() == 0 {
		L.ArgError(3, "steps must be a non-empty list")
		return 0
	}
	steps := make([]device.Step, 0, stepsTbl.Len())
	for i := 1; i <= stepsTbl.Len(); i++ {
		step, err := m.toStep(stepsTbl.RawGetInt(i))
		if err != nil {
			L.ArgError(3, fmt.Sprintf("steps[%d]: %v", i, err))
			return 0
		}
		steps = append(steps, step)
	}

	var cleanup *device.Step
	if v := opts.RawGetString("cleanup"); v != lua.LNil {
		step, err := m.toStep(v)
		if err != nil {
			L.ArgError(3, "cleanup: "+err.Error())
			return 0
		}
		cleanup = &step
	}

	if err := m.registry.Register(scripts.Template(kind, path, required, steps, cleanup)); err != nil {
		L.RaiseError("define %s: %v", kind, err)
		return 0
	}
	m.defined = append(m.defined, kind)

	log.Info().
		Str("kind", kind).
		Str("path", path).
		Int("steps", len(steps)).
		Msg("Registered scripted sequence")

	return 0
}

func (m *RobotModule) animation(L *lua.LState) int {
	return m.pushStep(L, map[string]lua.LValue{
		"animation": lua.LString(L.CheckString(1)),
	}, device.StepAnimation)
}

func (m *RobotModule) drive(L *lua.LState) int {
	return m.pushStep(L, map[string]lua.LValue{
		"distance_mm": L.CheckNumber(1),
		"speed_mmps":  L.CheckNumber(2),
	}, device.StepDrive)
}

func (m *RobotModule) lift(L *lua.LState) int {
	return m.pushStep(L, map[string]lua.LValue{
		"height": L.CheckNumber(1),
	}, device.StepLift)
}

func (m *RobotModule) say(L *lua.LState) int {
	return m.pushStep(L, map[string]lua.LValue{
		"text": lua.LString(L.CheckString(1)),
	}, device.StepSpeak)
}

func (m *RobotModule) getInPosition(L *lua.LState) int {
	return m.pushStep(L, nil, device.StepGetInPosition)
}

// lights(color, seconds?, channels?)
func (m *RobotModule) lights(L *lua.LState) int {
	fields := map[string]lua.LValue{
		"color": lua.LString(L.CheckString(1)),
	}
	if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		fields["seconds"] = L.CheckNumber(2)
	}
	if tbl := L.OptTable(3, nil); tbl != nil {
		fields["channels"] = tbl
	}
	return m.pushStep(L, fields, device.StepLightEffect)
}

// lights_off(channels?)
func (m *RobotModule) lightsOff(L *lua.LState) int {
	fields := map[string]lua.LValue{}
	if tbl := L.OptTable(1, nil); tbl != nil {
		fields["channels"] = tbl
	}
	return m.pushStep(L, fields, device.StepLightsOff)
}

func (m *RobotModule) pushStep(L *lua.LState, fields map[string]lua.LValue, kind device.StepKind) int {
	tbl := L.NewTable()
	tbl.RawSetString("kind", lua.LString(kind))
	for k, v := range fields {
		tbl.RawSetString(k, v)
	}
	L.Push(tbl)
	return 1
}

// toStep converts a step table built by the constructors (or by hand) to a device.Step.
func (m *RobotModule) toStep(v lua.LValue) (device.Step, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return device.Step{}, fmt.Errorf("step is %s, want table", v.Type())
	}
	kind, err := stringField(tbl, "kind")
	if err != nil {
		return device.Step{}, err
	}

	switch device.StepKind(kind) {
	case device.StepAnimation:
		name, err := stringField(tbl, "animation")
		if err != nil {
			return device.Step{}, err
		}
		return device.Animation(name), nil

	case device.StepDrive:
		dist, err := numberField(tbl, "distance_mm", 0)
		if err != nil {
			return device.Step{}, err
		}
		speed, err := numberField(tbl, "speed_mmps", 0)
		if err != nil {
			return device.Step{}, err
		}
		if speed <= 0 {
			return device.Step{}, fmt.Errorf("drive speed must be positive")
		}
		return device.Drive(dist, speed), nil

	case device.StepLift:
		height, err := numberField(tbl, "height", 0)
		if err != nil {
			return device.Step{}, err
		}
		if height < 0 || height > 1 {
			return device.Step{}, fmt.Errorf("lift height %g out of range 0..1", height)
		}
		return device.Lift(height), nil

	case device.StepSpeak:
		text, err := stringField(tbl, "text")
		if err != nil {
			return device.Step{}, err
		}
		return device.Speak(text), nil

	case device.StepGetInPosition:
		return device.GetInPosition(), nil

	case device.StepLightsOff:
		channels, err := channelList(tbl)
		if err != nil {
			return device.Step{}, err
		}
		return device.LightsOff(channels...), nil

	case device.StepLightEffect:
		name, err := stringField(tbl, "color")
		if err != nil {
			return device.Step{}, err
		}
		color, err := device.ParseColor(name)
		if err != nil {
			return device.Step{}, err
		}
		seconds, err := numberField(tbl, "seconds", m.defaultHold.Seconds())
		if err != nil {
			return device.Step{}, err
		}
		if seconds < 0 {
			return device.Step{}, fmt.Errorf("light hold must not be negative")
		}
		channels, err := channelList(tbl)
		if err != nil {
			return device.Step{}, err
		}
		hold := time.Duration(seconds * float64(time.Second))
		return device.UniformLightEffect(hold, color, channels...), nil

	default:
		return device.Step{}, fmt.Errorf("unknown step kind %q", kind)
	}
}

func channelList(tbl *lua.LTable) ([]device.ChannelID, error) {
	raw, ok := tbl.RawGetString("channels").(*lua.LTable)
	if !ok {
		return nil, nil
	}
	names, err := stringList(raw)
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}
	out := make([]device.ChannelID, len(names))
	for i, n := range names {
		out[i] = device.ChannelID(n)
	}
	return out, nil
}
