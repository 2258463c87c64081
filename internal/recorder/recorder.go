// Package recorder logs telemetry snapshots and sequence outcomes to SQLite.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "github.com/mattn/go-sqlite3"

	"HumaGCS/internal/drone"
)

type Flight struct {
	ID        string
	DeviceID  string
	Endpoint  string
	StartedAt time.Time
}

type Sample struct {
	Timestamp        time.Time
	Lat              float64
	Lon              float64
	RelativeAltitude float32
	Heading          float32
	Armed            bool
	FlightMode       string
}

type Event struct {
	Sequence   string
	Success    bool
	Stage      string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder writes one flight per Open. Safe for concurrent use.
type Recorder struct {
	db       *sql.DB
	flightID string
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open creates or reuses the database at path and starts a new flight.
func Open(ctx context.Context, path, deviceID, endpoint string, opts ...Option) (*Recorder, error) {
	r := &Recorder{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL"))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initializing schema")
	}

	r.db = db
	r.flightID = uuid.NewString()
	if _, err = db.ExecContext(ctx, insertFlightSQL, r.flightID, deviceID, endpoint, time.Now().UTC()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "inserting flight")
	}

	r.logger.Info("recording flight", "flight", r.flightID, "path", path)
	return r, nil
}

func (r *Recorder) FlightID() string {
	return r.flightID
}

func (r *Recorder) RecordTelemetry(ctx context.Context, t drone.Telemetry) (err error) {
	stmt, err := r.db.PrepareContext(ctx, insertTelemetrySQL)
	if err != nil {
		return errors.Wrap(err, "preparing statement")
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(ctx,
		r.flightID,
		time.Now().UTC(),
		nullFloat(t.Lat, t.HasPosition()),
		nullFloat(t.Lon, t.HasPosition()),
		t.Altitude,
		t.RelativeAltitude,
		t.Heading,
		t.Roll,
		t.Pitch,
		t.Yaw,
		t.Groundspeed,
		t.Airspeed,
		t.BatteryVoltage,
		t.BatteryLevel,
		t.Armed,
		t.FlightMode,
		t.GPSFix,
		t.Satellites,
	)
	if err != nil {
		return errors.Wrap(err, "inserting telemetry")
	}
	return nil
}

func (r *Recorder) RecordSequence(ctx context.Context, res drone.SequenceResult) (err error) {
	var msg sql.NullString
	if res.Err != nil {
		msg = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	stmt, err := r.db.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return errors.Wrap(err, "preparing statement")
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(ctx,
		r.flightID,
		res.Sequence,
		res.Success,
		string(res.Stage),
		msg,
		res.Started.UTC(),
		res.Finished.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "inserting event")
	}
	return nil
}

// Observer adapts RecordSequence for drone.WithSequenceObserver.
func (r *Recorder) Observer() func(drone.SequenceResult) {
	return func(res drone.SequenceResult) {
		if err := r.RecordSequence(context.Background(), res); err != nil {
			r.logger.Error("recording sequence", "sequence", res.Sequence, "error", err)
		}
	}
}

// Run samples src every interval until ctx is done. Snapshots that have not
// changed since the last sample are skipped.
func (r *Recorder) Run(ctx context.Context, src drone.TelemetrySource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t := src.Telemetry()
			if t.Updated == last {
				continue
			}
			last = t.Updated

			if err := r.RecordTelemetry(ctx, t); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("recording telemetry", "error", err)
			}
		}
	}
}

func (r *Recorder) Flights(ctx context.Context) (flights []Flight, err error) {
	rows, err := r.db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "querying flights")
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Flight
		var endpoint sql.NullString
		if err = rows.Scan(&f.ID, &f.DeviceID, &endpoint, &f.StartedAt); err != nil {
			return nil, errors.Wrap(err, "scanning flight")
		}
		f.Endpoint = endpoint.String
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *Recorder) Telemetry(ctx context.Context, flightID string) (samples []Sample, err error) {
	rows, err := r.db.QueryContext(ctx, selectTelemetrySQL, flightID)
	if err != nil {
		return nil, errors.Wrap(err, "querying telemetry")
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var s Sample
		var lat, lon sql.NullFloat64
		var mode sql.NullString
		if err = rows.Scan(&s.Timestamp, &lat, &lon, &s.RelativeAltitude, &s.Heading, &s.Armed, &mode); err != nil {
			return nil, errors.Wrap(err, "scanning telemetry")
		}
		s.Lat, s.Lon, s.FlightMode = lat.Float64, lon.Float64, mode.String
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (r *Recorder) Events(ctx context.Context, flightID string) (events []Event, err error) {
	rows, err := r.db.QueryContext(ctx, selectEventsSQL, flightID)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e Event
		var msg sql.NullString
		if err = rows.Scan(&e.Sequence, &e.Success, &e.Stage, &msg, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "scanning event")
		}
		e.Error = msg.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}
