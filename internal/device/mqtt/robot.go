// Package mqtt drives a robot through an MQTT bridge process.
//
// The bridge owns the robot SDK connection. This package publishes one
// command per step, waits for the matching ack, and tracks the retained
// busy state and cube presence the bridge publishes.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/device"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

// publishFunc sends a payload on a topic.
type publishFunc func(topic string, payload []byte) error

// Robot is a device.Device backed by an MQTT bridge.
//
// Thread Safety: all methods are safe for concurrent use.
type Robot struct {
	client        pahomqtt.Client
	publish       publishFunc
	topics        Topics
	robotID       string
	actionTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan ackMessage

	stateMu     sync.RWMutex
	state       stateMessage
	stateSeen   bool
	accessories map[device.ChannelID]bool
}

var _ device.Device = (*Robot)(nil)

// newRobot builds a Robot around an arbitrary publisher.
func newRobot(robotID string, actionTimeout time.Duration, publish publishFunc) *Robot {
	return &Robot{
		publish:       publish,
		topics:        Topics{RobotID: robotID},
		robotID:       robotID,
		actionTimeout: actionTimeout,
		pending:       make(map[string]chan ackMessage),
		accessories:   make(map[device.ChannelID]bool),
	}
}

// Connect connects to the broker and subscribes to the robot's ack, state and
// accessory topics. Subscriptions are restored on every reconnect.
func Connect(robotID string, cfg config.MQTTConfig) (*Robot, error) {
	r := newRobot(robotID, cfg.ActionTimeout.Duration(), nil)
	qos := byte(cfg.QoS)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(cfg.ReconnectMaxDelay.Duration())
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Str("robot", robotID).Msg("Connected to robot bridge")
		r.subscribe(c, qos)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("robot", robotID).Msg("Lost connection to robot bridge")
		r.failPending(fmt.Errorf("%w: connection lost: %w", device.ErrDeviceFailure, err))
	})

	r.client = pahomqtt.NewClient(opts)
	r.publish = func(topic string, payload []byte) error {
		if !r.client.IsConnected() {
			return device.ErrNotConnected
		}
		token := r.client.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(defaultPublishTimeout) {
			return fmt.Errorf("publish to %q: timeout after %v", topic, defaultPublishTimeout)
		}
		return token.Error()
	}

	token := r.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout.Duration()) {
		return nil, fmt.Errorf("%w: timeout after %v", device.ErrNotConnected, cfg.ConnectTimeout.Duration())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrNotConnected, err)
	}

	return r, nil
}

func (r *Robot) subscribe(c pahomqtt.Client, qos byte) {
	subs := map[string]func([]byte){
		r.topics.Ack():   r.handleAck,
		r.topics.State(): r.handleState,
	}
	for topic, handler := range subs {
		h := handler
		c.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			h(msg.Payload())
		})
	}
	c.Subscribe(r.topics.AccessoryWildcard(), qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		r.handleAccessory(msg.Topic(), msg.Payload())
	})
}

// IsBusy reports the retained busy flag. A robot that never reported state,
// or reported itself offline, counts as busy so no sequence starts against it.
func (r *Robot) IsBusy(_ context.Context) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return !r.stateSeen || !r.state.Online || r.state.Busy
}

// Perform publishes the step as a command and waits for its ack.
func (r *Robot) Perform(ctx context.Context, step device.Step) error {
	return r.command(ctx, string(step.Kind), step.Params())
}

// Channel returns the channel if the bridge reports it connected.
func (r *Robot) Channel(_ context.Context, id device.ChannelID) (device.Channel, error) {
	if !r.accessoryConnected(id) {
		return nil, fmt.Errorf("%s: %w", id, device.ErrAccessoryUnavailable)
	}
	return &channel{robot: r, id: id}, nil
}

// Ready returns nil when the broker connection is up and the robot is online.
func (r *Robot) Ready(_ context.Context) error {
	if r.client != nil && !r.client.IsConnected() {
		return device.ErrNotConnected
	}
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if !r.stateSeen || !r.state.Online {
		return fmt.Errorf("robot %s offline: %w", r.robotID, device.ErrNotConnected)
	}
	return nil
}

// Close fails outstanding commands and disconnects from the broker.
func (r *Robot) Close() error {
	r.failPending(device.ErrNotConnected)
	if r.client != nil {
		r.client.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}

func (r *Robot) command(ctx context.Context, command string, params map[string]any) error {
	id := uuid.New().String()
	payload, err := json.Marshal(commandMessage{
		ID:         id,
		RobotID:    r.robotID,
		Command:    command,
		Parameters: params,
	})
	if err != nil {
		return fmt.Errorf("marshalling %s command: %w", command, err)
	}

	ackCh := make(chan ackMessage, 1)
	r.pendingMu.Lock()
	r.pending[id] = ackCh
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, id)
		r.pendingMu.Unlock()
	}()

	if err := r.publish(r.topics.Command(), payload); err != nil {
		return fmt.Errorf("%s: %w: %w", command, device.ErrDeviceFailure, err)
	}

	var timeout <-chan time.Time
	if r.actionTimeout > 0 {
		timer := time.NewTimer(r.actionTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ack := <-ackCh:
		return ack.err(command)
	case <-timeout:
		return fmt.Errorf("%s: %w: no ack after %v", command, device.ErrDeviceFailure, r.actionTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", command, device.ErrDeviceFailure, ctx.Err())
	}
}

func (r *Robot) handleAck(payload []byte) {
	var ack ackMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		log.Warn().Err(err).Msg("Invalid ack from robot bridge")
		return
	}

	r.pendingMu.Lock()
	ch, ok := r.pending[ack.ID]
	r.pendingMu.Unlock()
	if !ok {
		log.Debug().Str("id", ack.ID).Msg("Ack for unknown command")
		return
	}

	select {
	case ch <- ack:
	default:
	}
}

func (r *Robot) handleState(payload []byte) {
	var st stateMessage
	if err := json.Unmarshal(payload, &st); err != nil {
		log.Warn().Err(err).Msg("Invalid state from robot bridge")
		return
	}
	r.stateMu.Lock()
	r.state = st
	r.stateSeen = true
	r.stateMu.Unlock()
}

func (r *Robot) handleAccessory(topic string, payload []byte) {
	id, ok := channelFromTopic(topic)
	if !ok {
		return
	}
	var msg accessoryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Invalid accessory state from robot bridge")
		return
	}
	r.stateMu.Lock()
	r.accessories[id] = msg.Connected
	r.stateMu.Unlock()
}

func (r *Robot) accessoryConnected(id device.ChannelID) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.accessories[id]
}

// failPending completes every outstanding command with err.
func (r *Robot) failPending(err error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, ch := range r.pending {
		select {
		case ch <- ackMessage{ID: id, Outcome: ackError, Error: err.Error()}:
		default:
		}
	}
}

type channel struct {
	robot *Robot
	id    device.ChannelID
}

func (c *channel) ID() device.ChannelID { return c.id }

func (c *channel) SetColor(ctx context.Context, color device.Color) error {
	if !c.robot.accessoryConnected(c.id) {
		return fmt.Errorf("%s: %w", c.id, device.ErrAccessoryUnavailable)
	}
	return c.robot.command(ctx, commandSetLights, map[string]any{
		"channel": string(c.id),
		"color":   color.Hex(),
	})
}

func (c *channel) Off(ctx context.Context) error {
	if !c.robot.accessoryConnected(c.id) {
		return fmt.Errorf("%s: %w", c.id, device.ErrAccessoryUnavailable)
	}
	return c.robot.command(ctx, commandLightOff, map[string]any{"channel": string(c.id)})
}
