package drone

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	gcserrors "HumaGCS/internal/errors"
	"HumaGCS/internal/link"
)

type UploadState int

const (
	UploadIdle UploadState = iota
	UploadCleared
	UploadCountSent
	UploadAwaitingItemRequest
	UploadItemSent
	UploadAwaitingFinalAck
	UploadDone
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "Idle"
	case UploadCleared:
		return "Cleared"
	case UploadCountSent:
		return "CountSent"
	case UploadAwaitingItemRequest:
		return "AwaitingItemRequest"
	case UploadItemSent:
		return "ItemSent"
	case UploadAwaitingFinalAck:
		return "AwaitingFinalAck"
	case UploadDone:
		return "Done"
	case UploadFailed:
		return "Failed"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// UploadStep is one entry of the uploader trace. Seq is -1 for states that
// aren't tied to an item.
type UploadStep struct {
	State UploadState
	Seq   int
}

func (s UploadStep) String() string {
	if s.Seq < 0 {
		return s.State.String()
	}
	return fmt.Sprintf("%s(%d)", s.State, s.Seq)
}

// UploadTimeouts bound each wait of the upload protocol.
type UploadTimeouts struct {
	ClearAck    time.Duration // absence of the clear ack is tolerated
	ItemRequest time.Duration
	FinalAck    time.Duration
}

// missionSender is the slice of *link.Link the uploader writes through.
type missionSender interface {
	Send(message.Message) error
	TargetSystem() uint8
	TargetComponent() uint8
}

// MissionUploader drives one mission transfer. It isn't reusable: after Done
// or Failed a new uploader starts again from Idle.
type MissionUploader struct {
	sender   missionSender
	frames   <-chan link.Frame
	timeouts UploadTimeouts
	logger   *slog.Logger

	state UploadState
	trace []UploadStep
}

// NewMissionUploader reads vehicle replies from frames, which must be
// subscribed before Upload is called so no reply is missed.
func NewMissionUploader(sender missionSender, frames <-chan link.Frame, timeouts UploadTimeouts, logger *slog.Logger) *MissionUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &MissionUploader{
		sender:   sender,
		frames:   frames,
		timeouts: timeouts,
		logger:   logger,
		state:    UploadIdle,
		trace:    []UploadStep{{State: UploadIdle, Seq: -1}},
	}
}

func (u *MissionUploader) State() UploadState { return u.state }

// Trace returns every state the uploader passed through, in order.
func (u *MissionUploader) Trace() []UploadStep {
	return append([]UploadStep(nil), u.trace...)
}

func (u *MissionUploader) enter(state UploadState, seq int) {
	u.state = state
	u.trace = append(u.trace, UploadStep{State: state, Seq: seq})
	u.logger.Debug("mission upload", "state", state.String(), "seq", seq)
}

func (u *MissionUploader) fail(seq int, err, cause error) error {
	failedIn := u.state
	u.enter(UploadFailed, -1)
	u.logger.Warn("mission upload failed", "state", failedIn.String(), "seq", seq, "error", err)
	return &gcserrors.MissionError{State: failedIn.String(), Seq: seq, Err: err, Cause: cause}
}

func (u *MissionUploader) send(seq int, msg message.Message) error {
	if err := u.sender.Send(msg); err != nil {
		return u.fail(seq, gcserrors.ErrSendFailed, err)
	}
	return nil
}

// next returns the next frame, or ok false when the timer fired.
func (u *MissionUploader) next(ctx context.Context, timer *time.Timer) (link.Frame, bool, error) {
	select {
	case <-ctx.Done():
		return link.Frame{}, false, ctx.Err()
	case <-timer.C:
		return link.Frame{}, false, nil
	case f := <-u.frames:
		return f, true, nil
	}
}

// Upload transfers items using the MISSION_CLEAR_ALL, MISSION_COUNT,
// MISSION_REQUEST(_INT), MISSION_ACK handshake.
func (u *MissionUploader) Upload(ctx context.Context, items []MissionItem) error {
	if u.state != UploadIdle {
		return &gcserrors.MissionError{State: u.state.String(), Seq: -1, Err: gcserrors.ErrUploaderUsed}
	}
	if err := ValidateMission(items); err != nil {
		return u.fail(-1, gcserrors.ErrInvalidMission, err)
	}

	sys, comp := u.sender.TargetSystem(), u.sender.TargetComponent()

	if err := u.send(-1, &common.MessageMissionClearAll{TargetSystem: sys, TargetComponent: comp}); err != nil {
		return err
	}
	if err := u.awaitClearAck(ctx); err != nil {
		return err
	}
	u.enter(UploadCleared, -1)

	count := &common.MessageMissionCount{TargetSystem: sys, TargetComponent: comp, Count: uint16(len(items))}
	if err := u.send(-1, count); err != nil {
		return err
	}
	u.enter(UploadCountSent, -1)

	for i, item := range items {
		u.enter(UploadAwaitingItemRequest, i)
		if err := u.serveItem(ctx, i, item, sys, comp); err != nil {
			return err
		}
		u.enter(UploadItemSent, i)
	}

	u.enter(UploadAwaitingFinalAck, -1)
	return u.awaitFinalAck(ctx)
}

func (u *MissionUploader) awaitClearAck(ctx context.Context) error {
	timer := time.NewTimer(u.timeouts.ClearAck)
	defer timer.Stop()

	for {
		f, ok, err := u.next(ctx, timer)
		if err != nil {
			return u.fail(-1, gcserrors.ErrMissionTimeout, err)
		}
		if !ok {
			u.logger.Debug("no ack for mission clear, continuing")
			return nil
		}
		if ack, isAck := f.Message.(*common.MessageMissionAck); isAck {
			if ack.Type != common.MAV_MISSION_ACCEPTED {
				return u.fail(-1, gcserrors.ErrMissionRejected, errors.Errorf("clear: %s", ack.Type))
			}
			return nil
		}
	}
}

func (u *MissionUploader) serveItem(ctx context.Context, i int, item MissionItem, sys, comp uint8) error {
	timer := time.NewTimer(u.timeouts.ItemRequest)
	defer timer.Stop()

	for {
		f, ok, err := u.next(ctx, timer)
		if err != nil {
			return u.fail(i, gcserrors.ErrMissionTimeout, err)
		}
		if !ok {
			return u.fail(i, gcserrors.ErrMissionTimeout, nil)
		}

		switch m := f.Message.(type) {
		case *common.MessageMissionRequestInt:
			if int(m.Seq) != i {
				return u.fail(i, gcserrors.ErrMissionOutOfOrder, errors.Errorf("requested %d", m.Seq))
			}
			return u.send(i, item.itemIntMessage(sys, comp))
		case *common.MessageMissionRequest:
			if int(m.Seq) != i {
				return u.fail(i, gcserrors.ErrMissionOutOfOrder, errors.Errorf("requested %d", m.Seq))
			}
			return u.send(i, item.itemMessage(sys, comp))
		case *common.MessageMissionAck:
			if m.Type != common.MAV_MISSION_ACCEPTED {
				return u.fail(i, gcserrors.ErrMissionRejected, errors.Errorf("%s", m.Type))
			}
			return u.fail(i, gcserrors.ErrMissionOutOfOrder, errors.Errorf("ack before item %d", i))
		}
	}
}

func (u *MissionUploader) awaitFinalAck(ctx context.Context) error {
	timer := time.NewTimer(u.timeouts.FinalAck)
	defer timer.Stop()

	for {
		f, ok, err := u.next(ctx, timer)
		if err != nil {
			return u.fail(-1, gcserrors.ErrMissionTimeout, err)
		}
		if !ok {
			return u.fail(-1, gcserrors.ErrMissionTimeout, nil)
		}

		switch m := f.Message.(type) {
		case *common.MessageMissionAck:
			if m.Type != common.MAV_MISSION_ACCEPTED {
				return u.fail(-1, gcserrors.ErrMissionRejected, errors.Errorf("%s", m.Type))
			}
			u.enter(UploadDone, -1)
			u.logger.Info("mission uploaded")
			return nil
		case *common.MessageMissionRequest, *common.MessageMissionRequestInt:
			return u.fail(-1, gcserrors.ErrMissionOutOfOrder, errors.New("request after last item"))
		}
	}
}

// UploadMission uploads items to the connected vehicle and returns the
// uploader trace alongside the result.
func (d *Drone) UploadMission(ctx context.Context, items []MissionItem) ([]UploadStep, error) {
	l, err := d.currentLink()
	if err != nil {
		return nil, &gcserrors.MissionError{State: UploadIdle.String(), Seq: -1, Err: err}
	}

	frames, unsubscribe := d.bus.subscribe()
	defer unsubscribe()

	u := NewMissionUploader(l, frames, UploadTimeouts{
		ClearAck:    d.timeouts.ClearAck,
		ItemRequest: d.timeouts.MissionItem,
		FinalAck:    d.timeouts.MissionAck,
	}, d.logger)

	d.logger.Info("uploading mission", "items", len(items))
	err = u.Upload(ctx, items)
	return u.Trace(), err
}
