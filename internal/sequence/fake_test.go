package sequence

import (
	"context"
	"sync"

	"github.com/dokzlo13/cubehook/internal/device"
)

// fakeDevice records every call and answers from per-kind scripted errors.
type fakeDevice struct {
	mu        sync.Mutex
	busy      bool
	errs      map[device.StepKind]error
	performed []device.Step
	cubes     map[device.ChannelID]*fakeChannel
	onPerform func(device.Step)
}

func newFakeDevice(available ...device.ChannelID) *fakeDevice {
	d := &fakeDevice{
		errs:  make(map[device.StepKind]error),
		cubes: make(map[device.ChannelID]*fakeChannel),
	}
	for _, id := range available {
		d.cubes[id] = &fakeChannel{id: id}
	}
	return d
}

func (d *fakeDevice) IsBusy(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func (d *fakeDevice) Perform(_ context.Context, step device.Step) error {
	d.mu.Lock()
	d.performed = append(d.performed, step)
	err := d.errs[step.Kind]
	hook := d.onPerform
	d.mu.Unlock()

	if hook != nil {
		hook(step)
	}
	return err
}

func (d *fakeDevice) Channel(_ context.Context, id device.ChannelID) (device.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.cubes[id]
	if !ok {
		return nil, device.ErrAccessoryUnavailable
	}
	return ch, nil
}

func (d *fakeDevice) Ready(context.Context) error { return nil }
func (d *fakeDevice) Close() error                { return nil }

func (d *fakeDevice) kinds() []device.StepKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device.StepKind, len(d.performed))
	for i, s := range d.performed {
		out[i] = s.Kind
	}
	return out
}

type fakeChannel struct {
	mu       sync.Mutex
	id       device.ChannelID
	color    device.Color
	lit      bool
	sets     int
	offs     int
	setErr   error
	offErr   error
	setPanic bool
}

func (c *fakeChannel) ID() device.ChannelID { return c.id }

func (c *fakeChannel) SetColor(_ context.Context, color device.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setPanic {
		panic("cube firmware crashed")
	}
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.color = color
	c.lit = true
	return nil
}

func (c *fakeChannel) Off(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c.offs++
	c.lit = false
	return c.offErr
}
