package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidEndpoint  = errors.New("ErrInvalidEndpoint: endpoint string isn't recognised")
	ErrTransportOpen    = errors.New("ErrTransportOpen: transport couldn't be opened")
	ErrNoHeartbeat      = errors.New("ErrNoHeartbeat: no heartbeat received from vehicle")
	ErrNotConnected     = errors.New("ErrNotConnected: link isn't connected")
	ErrAlreadyConnected = errors.New("ErrAlreadyConnected: link is already connected")
	ErrLinkClosed       = errors.New("ErrLinkClosed: link is closed")
	ErrSendFailed       = errors.New("ErrSendFailed: message couldn't be sent")

	ErrUnknownMode     = errors.New("ErrUnknownMode: mode isn't known for this vehicle")
	ErrModeTimeout     = errors.New("ErrModeTimeout: vehicle didn't report the requested mode")
	ErrCommandRejected = errors.New("ErrCommandRejected: vehicle rejected the command")
	ErrArmTimeout      = errors.New("ErrArmTimeout: vehicle didn't report armed state")
	ErrPositionTimeout = errors.New("ErrPositionTimeout: no position received")

	ErrInvalidMission    = errors.New("ErrInvalidMission: mission isn't well formed")
	ErrMissionTimeout    = errors.New("ErrMissionTimeout: vehicle stopped answering the upload")
	ErrMissionRejected   = errors.New("ErrMissionRejected: vehicle rejected the mission")
	ErrMissionOutOfOrder = errors.New("ErrMissionOutOfOrder: unexpected mission message")
	ErrUploaderUsed      = errors.New("ErrUploaderUsed: uploader already ran")

	ErrInvalidAltitude = errors.New("ErrInvalidAltitude: altitude outside safety limits")
	ErrUnsupported     = errors.New("ErrUnsupported: operation isn't supported")
)

// causes flattens a sentinel and an optional underlying cause for errors.Is.
func causes(err, cause error) []error {
	if cause == nil {
		return []error{err}
	}
	return []error{err, cause}
}

func describe(prefix string, err, cause error) string {
	if cause == nil {
		return fmt.Sprintf("%s: %v", prefix, err)
	}
	return fmt.Sprintf("%s: %v: %v", prefix, err, cause)
}

// ConnectionError reports a failure to open or keep a link to the vehicle.
type ConnectionError struct {
	Endpoint string
	Err      error
	Cause    error
}

func (e *ConnectionError) Error() string {
	return describe("connection "+e.Endpoint, e.Err, e.Cause)
}

func (e *ConnectionError) Unwrap() []error { return causes(e.Err, e.Cause) }

// CommandError reports a command that couldn't be sent or wasn't honoured.
type CommandError struct {
	Command string
	Err     error
	Cause   error
}

func (e *CommandError) Error() string {
	return describe("command "+e.Command, e.Err, e.Cause)
}

func (e *CommandError) Unwrap() []error { return causes(e.Err, e.Cause) }

// MissionError reports the upload state in which a mission transfer failed.
// Seq is -1 when the failure isn't tied to a mission item.
type MissionError struct {
	State string
	Seq   int
	Err   error
	Cause error
}

func (e *MissionError) Error() string {
	prefix := "mission upload in " + e.State
	if e.Seq >= 0 {
		prefix = fmt.Sprintf("%s(%d)", prefix, e.Seq)
	}
	return describe(prefix, e.Err, e.Cause)
}

func (e *MissionError) Unwrap() []error { return causes(e.Err, e.Cause) }

// SequenceError labels the stage at which a flight sequence stopped.
type SequenceError struct {
	Sequence string
	Stage    string
	Err      error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s sequence failed at %s: %v", e.Sequence, e.Stage, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }
