// Package bridge relays vehicle telemetry to an MQTT broker and executes
// control commands received from it.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"HumaGCS/internal/drone"
)

const (
	qos    = 1
	retain = false

	publishTimeout = 2 * time.Second
)

// publisher is the part of mqtt.Client the bridge uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Controller is the vehicle side of remote commands. *drone.Drone implements it.
type Controller interface {
	drone.TelemetrySource
	ArmDisarm(arm bool) error
	SetMode(name string) error
	ReturnToLaunch() error
	AutonomousTakeoff(ctx context.Context, alt float32) drone.SequenceResult
	AutonomousLand(ctx context.Context, lon, lat float64, currentAlt, cruiseAlt float32) drone.SequenceResult
}

type controlCommand struct {
	Command string `json:"command"`
	Payload string `json:"payload"`
}

type telemetryMessage struct {
	drone.Telemetry
	DeviceID  string `json:"device_id"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
}

type sequenceMessage struct {
	DeviceID  string `json:"device_id"`
	MessageID string `json:"message_id"`
	Sequence  string `json:"sequence"`
	Success   bool   `json:"success"`
	Stage     string `json:"stage"`
	Error     string `json:"error,omitempty"`
	Started   int64  `json:"started"`
	Finished  int64  `json:"finished"`
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithAltitudes sets the takeoff altitude used when a takeoff command has no
// payload and the cruise altitude for remote landings.
func WithAltitudes(takeoff, cruise float32) Option {
	return func(b *Bridge) {
		b.takeoffAlt = takeoff
		b.cruiseAlt = cruise
	}
}

type Bridge struct {
	client   publisher
	deviceID string
	ctrl     Controller
	logger   *slog.Logger

	takeoffAlt float32
	cruiseAlt  float32

	commands chan []byte
}

func New(client publisher, deviceID string, ctrl Controller, opts ...Option) *Bridge {
	b := &Bridge{
		client:     client,
		deviceID:   deviceID,
		ctrl:       ctrl,
		logger:     slog.Default(),
		takeoffAlt: 50,
		cruiseAlt:  30,
		commands:   make(chan []byte, 8),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) topic(suffix string) string {
	return fmt.Sprintf("/devices/%s/%s", b.deviceID, suffix)
}

// Start subscribes to control commands and launches the telemetry and command
// routines. Both stop when ctx is done; wg tracks them.
func (b *Bridge) Start(ctx context.Context, wg *sync.WaitGroup, rate time.Duration) error {
	topic := b.topic("commands/control")
	tok := b.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.logger.Debug("control command", "payload", string(msg.Payload()))
		select {
		case b.commands <- msg.Payload():
		default:
			b.logger.Warn("control command dropped, previous commands still running")
		}
	})
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("subscribing to %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return errors.Wrapf(err, "subscribing to %s", topic)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		b.sendTelemetry(ctx, rate)
	}()
	go func() {
		defer wg.Done()
		b.handleControlCommands(ctx)
	}()
	return nil
}

// sendTelemetry publishes a snapshot every rate, skipping rounds in which
// nothing changed.
func (b *Bridge) sendTelemetry(ctx context.Context, rate time.Duration) {
	topic := b.topic("events/telemetry")
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-ticker.C:
			t := b.ctrl.Telemetry()
			if t.Updated == sent {
				continue
			}
			sent = t.Updated

			msg := telemetryMessage{
				Telemetry: t,
				DeviceID:  b.deviceID,
				MessageID: uuid.New().String(),
				Timestamp: time.Now().UnixNano() / 1000,
			}
			b.publish(topic, msg)
		case <-ctx.Done():
			return
		}
	}
}

// PublishSequence reports a finished sequence. It can be registered as a
// drone sequence observer.
func (b *Bridge) PublishSequence(r drone.SequenceResult) {
	msg := sequenceMessage{
		DeviceID:  b.deviceID,
		MessageID: uuid.New().String(),
		Sequence:  r.Sequence,
		Success:   r.Success,
		Stage:     string(r.Stage),
		Started:   r.Started.UnixMilli(),
		Finished:  r.Finished.UnixMilli(),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	b.publish(b.topic("events/sequence"), msg)
}

func (b *Bridge) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("marshaling message", "topic", topic, "error", err)
		return
	}
	tok := b.client.Publish(topic, qos, retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		b.logger.Warn("publish timed out", "topic", topic)
		return
	}
	if err := tok.Error(); err != nil {
		b.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) handleControlCommands(ctx context.Context) {
	for {
		select {
		case payload := <-b.commands:
			if err := b.handleControlCommand(ctx, payload); err != nil {
				b.logger.Error("control command failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) handleControlCommand(ctx context.Context, payload []byte) error {
	var cmd controlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return errors.Wrap(err, "unmarshaling command")
	}

	b.logger.Info("executing command", "command", cmd.Command, "payload", cmd.Payload)
	switch cmd.Command {
	case "arm":
		return b.ctrl.ArmDisarm(true)
	case "disarm":
		return b.ctrl.ArmDisarm(false)
	case "mode":
		if cmd.Payload == "" {
			return errors.New("mode command needs a mode name")
		}
		return b.ctrl.SetMode(cmd.Payload)
	case "rtl":
		return b.ctrl.ReturnToLaunch()
	case "takeoff":
		alt := b.takeoffAlt
		if cmd.Payload != "" {
			v, err := strconv.ParseFloat(cmd.Payload, 32)
			if err != nil {
				return errors.Wrapf(err, "takeoff altitude %q", cmd.Payload)
			}
			alt = float32(v)
		}
		return b.ctrl.AutonomousTakeoff(ctx, alt).Err
	case "land":
		lat, lon, err := ParseLatLon(cmd.Payload)
		if err != nil {
			return err
		}
		current := b.ctrl.Telemetry().RelativeAltitude
		return b.ctrl.AutonomousLand(ctx, lon, lat, current, b.cruiseAlt).Err
	default:
		return errors.Errorf("unknown command: %s", cmd.Command)
	}
}

// ParseLatLon parses "lat,lon" in decimal degrees.
func ParseLatLon(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("position %q: want lat,lon", s)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, errors.Wrapf(err, "latitude %q", parts[0])
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, errors.Wrapf(err, "longitude %q", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, errors.Errorf("position %q is out of range", s)
	}
	return lat, lon, nil
}
