package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"HumaGCS/internal/bridge"
	"HumaGCS/internal/config"
	"HumaGCS/internal/drone"
	"HumaGCS/internal/link"
	"HumaGCS/internal/missionplan"
	"HumaGCS/internal/recorder"
)

// Actions are the one-shot operations requested on the command line, run in
// field order.
type Actions struct {
	Takeoff float32 // altitude, 0 to skip
	Land    string  // "lat,lon"
	Plan    string  // waypoint plan to fly in GUIDED
	Upload  bool    // upload Plan as an AUTO mission instead of flying it
	RTL     bool
	Watch   bool // keep running until interrupted
}

func (a Actions) empty() bool {
	return a.Takeoff == 0 && a.Land == "" && a.Plan == "" && !a.RTL
}

// ListPorts prints the serial ports a telemetry radio could be attached to.
func ListPorts(w io.Writer) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return errors.Wrap(err, "listing serial ports")
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintf(w, "%s,%d\n", p, link.DefaultBaud)
	}
	return nil
}

// ExportKML writes the mission a plan would upload as KML.
func ExportKML(planPath, out string) error {
	plan, err := missionplan.Load(planPath)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "creating %s", out)
	}
	if err = missionplan.WriteKML(f, plan.Name, plan.Mission()); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "writing kml")
	}
	return f.Close()
}

func droneLimits(cfg *config.Config) drone.SafetyLimits {
	return drone.SafetyLimits{
		MaxAltitude:       cfg.Sequence.MaxAltitude,
		MinSatellites:     cfg.Sequence.MinSatellites,
		MinBatteryVoltage: cfg.Sequence.MinBatteryVoltage,
	}
}

func droneOptions(cfg *config.Config, logger *slog.Logger) []drone.Option {
	seq := cfg.Sequence
	return []drone.Option{
		drone.WithLogger(logger),
		drone.WithTimeouts(drone.Timeouts(cfg.Timeouts)),
		drone.WithSequenceOptions(drone.SequenceOptions{
			LeadingTakeoff:   seq.KeepLeadingTakeoff(),
			ApproachDistance: seq.ApproachDistance,
			Limits:           droneLimits(cfg),
		}),
		drone.WithLinkOptions(
			link.WithSystemID(cfg.Link.SystemID, cfg.Link.ComponentID),
			link.WithStreamRate(cfg.Link.StreamRate),
		),
	}
}

// Run connects to the vehicle, starts the optional recorder and bridge, then
// performs actions. opts are applied after the configured drone options.
func Run(ctx context.Context, cfg *config.Config, actions Actions, logger *slog.Logger, opts ...drone.Option) error {
	d := drone.NewDrone(append(droneOptions(cfg, logger), opts...)...)
	if err := d.Connect(cfg.Link.Endpoint); err != nil {
		return err
	}
	defer d.Disconnect()

	// closers run once the background routines have stopped
	var wg sync.WaitGroup
	var closers []func()
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if cfg.Recorder.Enabled {
		rec, err := startRecorder(ctx, &wg, cfg, d, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = rec.Close() })
	}

	if cfg.Bridge.Enabled {
		client, err := bridge.NewMQTTClient(cfg.Bridge, cfg.Settings.DeviceID, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { client.Disconnect(250) })

		b := bridge.New(client, cfg.Settings.DeviceID, d,
			bridge.WithLogger(logger),
			bridge.WithAltitudes(cfg.Sequence.TakeoffAltitude, cfg.Sequence.CruiseAltitude))
		if err = b.Start(ctx, &wg, cfg.Bridge.Rate); err != nil {
			return err
		}
		d.Observe(b.PublishSequence)
	}

	PrintStatus(os.Stdout, d.Status(), d.Telemetry(), droneLimits(cfg))

	if err := perform(ctx, d, cfg, actions); err != nil {
		return err
	}

	if actions.Watch || actions.empty() {
		logger.Info("running until interrupted")
		<-ctx.Done()
	}
	return nil
}

func startRecorder(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, d *drone.Drone, logger *slog.Logger) (*recorder.Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Recorder.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating recorder directory")
	}
	rec, err := recorder.Open(ctx, cfg.Recorder.Path, cfg.Settings.DeviceID, cfg.Link.Endpoint, recorder.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	d.Observe(rec.Observer())

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rec.Run(ctx, d, cfg.Recorder.Interval)
	}()
	return rec, nil
}

func perform(ctx context.Context, d *drone.Drone, cfg *config.Config, a Actions) error {
	if a.Takeoff > 0 {
		if r := d.AutonomousTakeoff(ctx, a.Takeoff); !r.Success {
			return r.Err
		}
	}

	if a.Plan != "" {
		plan, err := missionplan.Load(a.Plan)
		if err != nil {
			return err
		}
		if a.Upload {
			if _, err = d.UploadMission(ctx, plan.Mission()); err != nil {
				return err
			}
			if err = d.SetMode("AUTO"); err != nil {
				return err
			}
		} else {
			threshold := plan.Threshold
			if threshold <= 0 {
				threshold = cfg.Sequence.WaypointThreshold
			}
			if err = d.SetMode("GUIDED"); err != nil {
				return err
			}
			if _, err = d.FlyWaypoints(ctx, plan.Waypoints(), threshold); err != nil {
				return err
			}
		}
	}

	if a.Land != "" {
		lat, lon, err := bridge.ParseLatLon(a.Land)
		if err != nil {
			return err
		}
		current := d.Telemetry().RelativeAltitude
		if r := d.AutonomousLand(ctx, lon, lat, current, cfg.Sequence.CruiseAltitude); !r.Success {
			return r.Err
		}
	}

	if a.RTL {
		return d.EmergencyStop()
	}
	return nil
}

// PrintStatus writes a short human readable connection report.
func PrintStatus(w io.Writer, s drone.ConnectionStatus, t drone.Telemetry, limits drone.SafetyLimits) {
	if !s.Connected {
		fmt.Fprintln(w, "not connected")
		return
	}
	fmt.Fprintf(w, "connected to system %d component %d via %s (%s)\n",
		s.SystemID, s.ComponentID, s.Endpoint, humanize.Time(s.ConnectedAt))

	hb := "never"
	if !s.LastHeartbeat.IsZero() {
		hb = humanize.RelTime(s.LastHeartbeat, time.Now(), "ago", "from now")
	}
	fmt.Fprintf(w, "mode %s, armed %t, last heartbeat %s\n", s.FlightMode, s.Armed, hb)

	if t.HasPosition() {
		fmt.Fprintf(w, "position %.7f, %.7f at %sm, heading %.0f\n",
			t.Lat, t.Lon, humanize.FormatFloat("#,###.#", float64(t.RelativeAltitude)), t.Heading)
	}
	fmt.Fprintf(w, "gps fix %d with %d satellites, battery %.1fV (%d%%)\n",
		t.GPSFix, t.Satellites, t.BatteryVoltage, t.BatteryLevel)
	for _, warning := range drone.PreArmCheck(t, limits) {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
