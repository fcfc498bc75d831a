package mqtt

import (
	"fmt"

	"github.com/dokzlo13/cubehook/internal/device"
)

// Command kinds for channel operations. Step commands use the step kind.
const (
	commandSetLights = "set_lights"
	commandLightOff  = "light_off"
)

// Ack outcomes reported by the bridge.
const (
	ackCompleted = "completed"
	ackBusy      = "busy"
	ackError     = "error"
)

// commandMessage is published on the command topic.
type commandMessage struct {
	ID         string         `json:"id"`
	RobotID    string         `json:"robot_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ackMessage is received on the ack topic.
type ackMessage struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// stateMessage is the retained robot state.
type stateMessage struct {
	Busy   bool `json:"busy"`
	Online bool `json:"online"`
}

// accessoryMessage is the retained presence of a channel.
type accessoryMessage struct {
	Connected bool `json:"connected"`
}

// err converts an ack into the error contract of device.Performer.
func (a ackMessage) err(command string) error {
	switch a.Outcome {
	case ackCompleted:
		return nil
	case ackBusy:
		return fmt.Errorf("%s: %w", command, device.ErrBusy)
	case ackError:
		if a.Error != "" {
			return fmt.Errorf("%s: %w: %s", command, device.ErrDeviceFailure, a.Error)
		}
		return fmt.Errorf("%s: %w", command, device.ErrDeviceFailure)
	default:
		return fmt.Errorf("%s: %w: unknown outcome %q", command, device.ErrDeviceFailure, a.Outcome)
	}
}
