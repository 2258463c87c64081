package drone

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	gcserrors "HumaGCS/internal/errors"
	"HumaGCS/internal/link"
)

// TelemetrySource is the read side of a connected vehicle.
type TelemetrySource interface {
	Telemetry() Telemetry
}

// Timeouts bounds every wait the drone performs.
type Timeouts struct {
	Connect            time.Duration
	Poll               time.Duration
	Mode               time.Duration
	Arm                time.Duration
	Position           time.Duration
	PositionAttempts   int
	AutoVerify         time.Duration
	AutoVerifyAttempts int
	ClearAck           time.Duration
	MissionItem        time.Duration
	MissionAck         time.Duration
	Navigator          time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:            10 * time.Second,
		Poll:               100 * time.Millisecond,
		Mode:               10 * time.Second,
		Arm:                30 * time.Second,
		Position:           5 * time.Second,
		PositionAttempts:   10,
		AutoVerify:         time.Second,
		AutoVerifyAttempts: 10,
		ClearAck:           time.Second,
		MissionItem:        5 * time.Second,
		MissionAck:         10 * time.Second,
		Navigator:          100 * time.Millisecond,
	}
}

// SafetyLimits are the pre-flight thresholds.
type SafetyLimits struct {
	MaxAltitude       float32
	MinSatellites     int
	MinBatteryVoltage float32
}

func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxAltitude:       500,
		MinSatellites:     6,
		MinBatteryVoltage: 10.5,
	}
}

// SequenceOptions shape the autonomous takeoff and landing missions.
type SequenceOptions struct {
	// LeadingTakeoff keeps the takeoff-in-place item at the head of the landing mission.
	LeadingTakeoff   bool
	ApproachDistance float64 // metres before the landing point
	Limits           SafetyLimits
}

func DefaultSequenceOptions() SequenceOptions {
	return SequenceOptions{
		LeadingTakeoff:   true,
		ApproachDistance: 300,
		Limits:           DefaultSafetyLimits(),
	}
}

type Option func(*Drone)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Drone) {
		d.logger = logger
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(d *Drone) {
		d.timeouts = t
	}
}

func WithSequenceOptions(s SequenceOptions) Option {
	return func(d *Drone) {
		d.sequence = s
	}
}

// WithLinkOptions are passed to link.Connect on every Connect.
func WithLinkOptions(opts ...link.Option) Option {
	return func(d *Drone) {
		d.linkOpts = append(d.linkOpts, opts...)
	}
}

// WithSequenceObserver registers fn to receive every finished sequence result.
func WithSequenceObserver(fn func(SequenceResult)) Option {
	return func(d *Drone) {
		d.observers = append(d.observers, fn)
	}
}

// Drone is the ground-station view of one vehicle.
type Drone struct {
	logger   *slog.Logger
	timeouts Timeouts
	sequence SequenceOptions
	linkOpts []link.Option

	store *telemetryStore
	bus   *frameBus

	mu          sync.Mutex
	link        *link.Link
	stop        chan struct{}
	wg          sync.WaitGroup
	connectedAt time.Time

	observerMu sync.Mutex
	observers  []func(SequenceResult)
}

func NewDrone(opts ...Option) *Drone {
	d := &Drone{
		logger:   slog.Default(),
		timeouts: DefaultTimeouts(),
		sequence: DefaultSequenceOptions(),
		store:    newTelemetryStore(),
		bus:      newFrameBus(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.linkOpts = append([]link.Option{link.WithLogger(d.logger)}, d.linkOpts...)
	return d
}

// Connect opens endpoint, waits for the vehicle heartbeat and starts telemetry ingestion.
func (d *Drone) Connect(endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.link != nil {
		return &gcserrors.ConnectionError{Endpoint: endpoint, Err: gcserrors.ErrAlreadyConnected}
	}

	l, err := link.Connect(endpoint, d.timeouts.Connect, d.linkOpts...)
	if err != nil {
		d.logger.Error("connect failed", "endpoint", endpoint, "error", err)
		return err
	}

	d.store.reset()
	hb := l.Heartbeat()
	d.store.apply(hb.Message, hb.Received)

	d.link = l
	d.stop = make(chan struct{})
	d.connectedAt = time.Now()

	d.wg.Add(1)
	go d.ingest(l, d.stop)

	d.logger.Info("connected", "endpoint", endpoint, "system", l.TargetSystem(), "component", l.TargetComponent())
	return nil
}

// ingest drains the link into the telemetry store until stop is closed or the
// link goes away. It checks stop once per poll interval.
func (d *Drone) ingest(l *link.Link, stop <-chan struct{}) {
	defer d.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		f, ok, err := l.Receive(d.timeouts.Poll)
		if err != nil {
			if errors.Is(err, gcserrors.ErrLinkClosed) {
				d.logger.Warn("telemetry link closed")
				return
			}
			d.logger.Warn("telemetry receive failed", "error", err)
			continue
		}
		if !ok || f.SystemID != l.TargetSystem() {
			continue
		}

		// other components of the system don't own the vehicle state
		fromAutopilot := f.ComponentID == l.TargetComponent()
		if fromAutopilot {
			d.store.apply(f.Message, f.Received)
		}
		d.bus.publish(f, fromAutopilot)
	}
}

// Subscribe streams every frame the vehicle's system sends, from any
// component, until unsubscribe is called. Slow readers lose frames.
func (d *Drone) Subscribe() (frames <-chan link.Frame, unsubscribe func()) {
	return d.bus.add(true)
}

// Disconnect stops ingestion and closes the link. It is safe to call repeatedly.
func (d *Drone) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.link == nil {
		return
	}

	close(d.stop)
	d.wg.Wait()
	d.link.Close()
	d.link = nil

	d.logger.Info("disconnected")
}

func (d *Drone) currentLink() (*link.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.link == nil {
		return nil, gcserrors.ErrNotConnected
	}
	return d.link, nil
}

func (d *Drone) Connected() bool {
	_, err := d.currentLink()
	return err == nil
}

// Telemetry returns a copy of the latest telemetry.
func (d *Drone) Telemetry() Telemetry {
	return d.store.snapshot()
}

// HeartbeatAge is the time since the last vehicle heartbeat; ok is false before
// the first one.
func (d *Drone) HeartbeatAge() (age time.Duration, ok bool) {
	last := d.store.snapshot().LastHeartbeat
	if last.IsZero() {
		return 0, false
	}
	return time.Since(last), true
}

// ConnectionStatus summarises the link for display.
type ConnectionStatus struct {
	Connected     bool
	Endpoint      string
	SystemID      uint8
	ComponentID   uint8
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	HeartbeatAge  time.Duration
	FlightMode    string
	Armed         bool
}

func (d *Drone) Status() ConnectionStatus {
	t := d.store.snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()

	s := ConnectionStatus{
		Connected:     d.link != nil,
		LastHeartbeat: t.LastHeartbeat,
		FlightMode:    t.FlightMode,
		Armed:         t.Armed,
	}
	if d.link != nil {
		s.Endpoint = d.link.Endpoint().String()
		s.SystemID = d.link.TargetSystem()
		s.ComponentID = d.link.TargetComponent()
		s.ConnectedAt = d.connectedAt
	}
	if !t.LastHeartbeat.IsZero() {
		s.HeartbeatAge = time.Since(t.LastHeartbeat)
	}
	return s
}

func (d *Drone) notify(r SequenceResult) {
	d.observerMu.Lock()
	observers := append([]func(SequenceResult){}, d.observers...)
	d.observerMu.Unlock()

	for _, fn := range observers {
		fn(r)
	}
}

// Observe registers fn after construction, e.g. once a recorder is open.
func (d *Drone) Observe(fn func(SequenceResult)) {
	d.observerMu.Lock()
	d.observers = append(d.observers, fn)
	d.observerMu.Unlock()
}
