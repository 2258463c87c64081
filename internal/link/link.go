package link

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	gcserrors "HumaGCS/internal/errors"
)

const (
	DefaultSystemID    = 255
	DefaultComponentID = 190 // MAV_COMP_ID_MISSIONPLANNER
)

// Transport is the part of *gomavlib.Node the link relies on.
type Transport interface {
	Events() chan gomavlib.Event
	WriteMessageAll(message.Message) error
	Close()
}

// OpenFunc opens a transport for the given node configuration.
type OpenFunc func(conf gomavlib.NodeConf) (Transport, error)

func openNode(conf gomavlib.NodeConf) (Transport, error) {
	node, err := gomavlib.NewNode(conf)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Frame is a decoded message together with its origin.
type Frame struct {
	SystemID    uint8
	ComponentID uint8
	Message     message.Message
	Received    time.Time
}

type options struct {
	open        OpenFunc
	systemID    uint8
	componentID uint8
	streamRate  int
	logger      *slog.Logger
}

type Option func(*options)

// WithTransport replaces the gomavlib node factory.
func WithTransport(open OpenFunc) Option {
	return func(o *options) {
		o.open = open
	}
}

func WithSystemID(systemID, componentID uint8) Option {
	return func(o *options) {
		o.systemID = systemID
		o.componentID = componentID
	}
}

// WithStreamRate asks ArduPilot-style vehicles to stream telemetry at hz.
// Zero leaves the vehicle's stream rates alone.
func WithStreamRate(hz int) Option {
	return func(o *options) {
		o.streamRate = hz
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Link is one open MAVLink connection to a single vehicle.
type Link struct {
	endpoint  Endpoint
	transport Transport
	logger    *slog.Logger

	targetSystem    uint8
	targetComponent uint8
	heartbeat       Frame

	closed    chan struct{}
	closeOnce sync.Once
}

// Connect opens the endpoint and blocks until the vehicle's first autopilot
// heartbeat arrives or timeout elapses. Heartbeats from ground stations and
// from components reporting MAV_AUTOPILOT_INVALID are skipped.
func Connect(endpoint string, timeout time.Duration, opts ...Option) (*Link, error) {
	o := options{
		open:        openNode,
		systemID:    DefaultSystemID,
		componentID: DefaultComponentID,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	conf := gomavlib.NodeConf{
		Endpoints:      []gomavlib.EndpointConf{ep.conf()},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    o.systemID,
		OutComponentID: o.componentID,
	}
	if o.streamRate > 0 {
		conf.StreamRequestEnable = true
		conf.StreamRequestFrequency = o.streamRate
	}

	transport, err := o.open(conf)
	if err != nil {
		return nil, &gcserrors.ConnectionError{Endpoint: ep.String(), Err: gcserrors.ErrTransportOpen, Cause: err}
	}

	l := &Link{
		endpoint:  ep,
		transport: transport,
		logger:    o.logger.With("endpoint", ep.String()),
		closed:    make(chan struct{}),
	}

	l.logger.Info("waiting for heartbeat", "timeout", timeout)
	if err := l.awaitHeartbeat(timeout); err != nil {
		l.Close()
		return nil, err
	}

	l.logger.Info("heartbeat received",
		"system", l.targetSystem,
		"component", l.targetComponent)

	return l, nil
}

func (l *Link) awaitHeartbeat(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &gcserrors.ConnectionError{Endpoint: l.endpoint.String(), Err: gcserrors.ErrNoHeartbeat}
		}

		f, ok, err := l.Receive(remaining)
		if err != nil {
			return &gcserrors.ConnectionError{Endpoint: l.endpoint.String(), Err: gcserrors.ErrNoHeartbeat, Cause: err}
		}
		if !ok {
			continue
		}

		// only an autopilot heartbeat names the vehicle
		hb, isHeartbeat := f.Message.(*common.MessageHeartbeat)
		if !isHeartbeat || hb.Type == common.MAV_TYPE_GCS || hb.Autopilot == common.MAV_AUTOPILOT_INVALID {
			continue
		}

		l.targetSystem = f.SystemID
		l.targetComponent = f.ComponentID
		l.heartbeat = f
		return nil
	}
}

// Receive waits up to timeout for the next decoded frame. ok is false when the
// timeout elapsed without one.
func (l *Link) Receive(timeout time.Duration) (f Frame, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-l.closed:
			return Frame{}, false, gcserrors.ErrLinkClosed
		case <-timer.C:
			return Frame{}, false, nil
		case evt, open := <-l.transport.Events():
			if !open {
				return Frame{}, false, gcserrors.ErrLinkClosed
			}

			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				return Frame{
					SystemID:    e.SystemID(),
					ComponentID: e.ComponentID(),
					Message:     e.Message(),
					Received:    time.Now(),
				}, true, nil
			case *gomavlib.EventParseError:
				l.logger.Debug("parse error", "error", e.Error)
			case *gomavlib.EventChannelOpen:
				l.logger.Debug("channel open", "channel", e.Channel)
			case *gomavlib.EventChannelClose:
				l.logger.Debug("channel closed", "channel", e.Channel)
			}
		}
	}
}

// Send writes msg to every channel of the link.
func (l *Link) Send(msg message.Message) error {
	select {
	case <-l.closed:
		return gcserrors.ErrLinkClosed
	default:
	}

	return l.transport.WriteMessageAll(msg)
}

// Close releases the transport. Calling it again is a no-op.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.transport.Close()
		l.logger.Info("link closed")
	})
}

func (l *Link) Endpoint() Endpoint { return l.endpoint }

func (l *Link) TargetSystem() uint8 { return l.targetSystem }

func (l *Link) TargetComponent() uint8 { return l.targetComponent }

// Heartbeat returns the heartbeat that completed Connect.
func (l *Link) Heartbeat() Frame { return l.heartbeat }
