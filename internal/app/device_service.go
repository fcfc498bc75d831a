package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/device"
	"github.com/dokzlo13/cubehook/internal/device/mqtt"
	"github.com/dokzlo13/cubehook/internal/device/sim"
)

// NewDevice opens the robot session selected by cfg.Device.Driver.
// There is exactly one session per process.
func NewDevice(cfg config.DeviceConfig) (device.Device, error) {
	switch cfg.Driver {
	case config.DriverSim:
		unavailable := make([]device.ChannelID, len(cfg.Sim.UnavailableCubes))
		for i, id := range cfg.Sim.UnavailableCubes {
			unavailable[i] = device.ChannelID(id)
		}
		log.Info().
			Dur("step_delay", cfg.Sim.StepDelay.Duration()).
			Strs("unavailable_cubes", cfg.Sim.UnavailableCubes).
			Msg("Using simulated robot")
		return sim.New(sim.Config{
			StepDelay:        cfg.Sim.StepDelay.Duration(),
			UnavailableCubes: unavailable,
		}), nil

	case config.DriverMQTT:
		robot, err := mqtt.Connect(cfg.RobotID, cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("connect robot bridge: %w", err)
		}
		return robot, nil

	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Driver)
	}
}
