package device

import "errors"

var (
	// ErrBusy is returned when the robot is already executing another command.
	ErrBusy = errors.New("device: busy")

	// ErrDeviceFailure is returned when an action failed for a device-specific reason.
	ErrDeviceFailure = errors.New("device: action failed")

	// ErrAccessoryUnavailable is returned when a named accessory is missing or disconnected.
	ErrAccessoryUnavailable = errors.New("device: accessory unavailable")

	// ErrNotConnected is returned when the robot session is not established.
	ErrNotConnected = errors.New("device: not connected")

	// ErrUnknownStep is returned for step kinds a driver does not implement.
	ErrUnknownStep = errors.New("device: unknown step kind")
)
