package drone

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"HumaGCS/internal/drone/pathing"
	gcserrors "HumaGCS/internal/errors"
)

// Stage names the step a flight sequence reached.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageMode       Stage = "mode"
	StageArm        Stage = "arm"
	StageLocation   Stage = "location"
	StageMission    Stage = "mission"
	StageAuto       Stage = "auto"
	StageAutoVerify Stage = "auto-verify"
	StageDone       Stage = "done"
)

const (
	SequenceTakeoff = "takeoff"
	SequenceLand    = "land"
)

// SequenceResult is the labelled outcome of a flight sequence. Err is a
// *errors.SequenceError whenever Success is false.
type SequenceResult struct {
	Sequence string
	Success  bool
	Stage    Stage
	Err      error
	Started  time.Time
	Finished time.Time
}

func (r SequenceResult) String() string {
	if r.Success {
		return fmt.Sprintf("%s: done in %s", r.Sequence, r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: failed at %s: %v", r.Sequence, r.Stage, r.Err)
}

type sequenceRun struct {
	d       *Drone
	name    string
	started time.Time
}

func (d *Drone) startSequence(name string) *sequenceRun {
	d.logger.Info("sequence started", "sequence", name)
	return &sequenceRun{d: d, name: name, started: time.Now()}
}

func (s *sequenceRun) fail(stage Stage, err error) SequenceResult {
	r := SequenceResult{
		Sequence: s.name,
		Stage:    stage,
		Err:      &gcserrors.SequenceError{Sequence: s.name, Stage: string(stage), Err: err},
		Started:  s.started,
		Finished: time.Now(),
	}
	s.d.logger.Error("sequence failed", "sequence", s.name, "stage", string(stage), "error", err)
	s.d.notify(r)
	return r
}

func (s *sequenceRun) done() SequenceResult {
	r := SequenceResult{
		Sequence: s.name,
		Success:  true,
		Stage:    StageDone,
		Started:  s.started,
		Finished: time.Now(),
	}
	s.d.logger.Info("sequence done", "sequence", s.name, "elapsed", r.Finished.Sub(r.Started))
	s.d.notify(r)
	return r
}

func (d *Drone) checkAltitude(alt float32) error {
	limit := d.sequence.Limits.MaxAltitude
	if alt <= 0 || (limit > 0 && alt > limit) {
		return errors.WithMessagef(gcserrors.ErrInvalidAltitude, "%.1fm outside (0, %.1fm]", alt, limit)
	}
	return nil
}

// AutonomousTakeoff switches to GUIDED, arms, uploads a single takeoff item at
// the current position and hands over to AUTO.
func (d *Drone) AutonomousTakeoff(ctx context.Context, alt float32) SequenceResult {
	run := d.startSequence(SequenceTakeoff)

	if err := d.checkAltitude(alt); err != nil {
		return run.fail(StageValidate, err)
	}
	if !d.Connected() {
		return run.fail(StageValidate, gcserrors.ErrNotConnected)
	}

	if err := d.SetMode("GUIDED"); err != nil {
		return run.fail(StageMode, err)
	}

	if problems := PreArmCheck(d.Telemetry(), d.sequence.Limits); len(problems) > 0 {
		d.logger.Warn("pre-arm checks not met", "problems", problems)
	}

	if err := d.ArmDisarm(true); err != nil {
		return run.fail(StageArm, err)
	}
	if err := d.WaitArmed(ctx, true, d.timeouts.Arm); err != nil {
		return run.fail(StageArm, err)
	}

	pos, err := d.WaitPosition(ctx, d.timeouts.PositionAttempts, d.timeouts.Position)
	if err != nil {
		return run.fail(StageLocation, err)
	}

	items := Sequence(TakeoffItem(0, pos.Lat, pos.Lon, alt))
	if _, err := d.UploadMission(ctx, items); err != nil {
		return run.fail(StageMission, err)
	}

	if _, err := d.requestMode("AUTO"); err != nil {
		return run.fail(StageAuto, err)
	}
	if err := d.awaitMode(ctx, "AUTO", d.timeouts.AutoVerifyAttempts, d.timeouts.AutoVerify); err != nil {
		return run.fail(StageAutoVerify, err)
	}

	return run.done()
}

// landingMission builds the approach-and-land mission for AutonomousLand.
func (d *Drone) landingMission(lon, lat float64, currentAlt, cruiseAlt float32) []MissionItem {
	pos := d.Telemetry()
	here := pathing.Coordinate{Lat: pos.Lat, Lon: pos.Lon}
	landing := pathing.Coordinate{Lat: lat, Lon: lon}
	approach := pathing.ApproachPoint(here, landing, d.sequence.ApproachDistance)

	var items []MissionItem
	if d.sequence.LeadingTakeoff {
		items = append(items, TakeoffItem(0, pos.Lat, pos.Lon, currentAlt))
	}
	items = append(items,
		WaypointItem(0, approach.Lat, approach.Lon, cruiseAlt),
		LandItem(0, lat, lon),
	)
	return Sequence(items...)
}

// AutonomousLand uploads an approach and landing mission ending at lon, lat
// and switches to AUTO.
func (d *Drone) AutonomousLand(ctx context.Context, lon, lat float64, currentAlt, cruiseAlt float32) SequenceResult {
	run := d.startSequence(SequenceLand)

	if err := d.checkAltitude(cruiseAlt); err != nil {
		return run.fail(StageValidate, err)
	}
	if limit := d.sequence.Limits.MaxAltitude; currentAlt < 0 || (limit > 0 && currentAlt > limit) {
		return run.fail(StageValidate, errors.WithMessagef(gcserrors.ErrInvalidAltitude, "current altitude %.1fm", currentAlt))
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return run.fail(StageValidate, errors.Errorf("landing point %.7f,%.7f out of range", lat, lon))
	}
	if !d.Connected() {
		return run.fail(StageValidate, gcserrors.ErrNotConnected)
	}

	items := d.landingMission(lon, lat, currentAlt, cruiseAlt)
	if _, err := d.UploadMission(ctx, items); err != nil {
		return run.fail(StageMission, err)
	}

	if err := d.SetMode("AUTO"); err != nil {
		return run.fail(StageAuto, err)
	}

	return run.done()
}

// EmergencyStop commands RTL without looking at telemetry freshness.
func (d *Drone) EmergencyStop() error {
	d.logger.Warn("emergency stop: returning to launch")
	return d.SetMode("RTL")
}
