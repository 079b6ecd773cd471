// Package ota receives a firmware image over the OTA characteristic in fixed
// size chunks and stages it for the next boot.
package ota

import "fmt"

// SectorSize is the flash erase unit the peer reserves space in
const SectorSize = 4096

// State is the transfer state reported in the status response
type State uint8

const (
	StateIdling State = iota
	StateErasing
	StateErased
	StateStarted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdling:
		return "IDLING"
	case StateErasing:
		return "ERASING"
	case StateErased:
		return "ERASED"
	case StateStarted:
		return "STARTED"
	case StateCompleted:
		return "COMPLETED"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ErrorCode is the result of the last OTA access
type ErrorCode uint8

const (
	Success ErrorCode = iota
	CRCFailed
	MissingPart
	FWTooBig
	WrongState
	WriteFailed
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case CRCFailed:
		return "CRC_FAILED"
	case MissingPart:
		return "MISSING_PART"
	case FWTooBig:
		return "FW_TOO_BIG"
	case WrongState:
		return "WRONG_STATE"
	case WriteFailed:
		return "WRITE_FAILED"
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// Error is returned by Transfer.Write when an access fails
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "ota: " + e.Code.String()
	}
	return fmt.Sprintf("ota: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Flash is the staging partition an image is written to
type Flash interface {
	Open(size int64) error
	WriteAt(p []byte, off int64) (int, error)
	Commit() error
	Abort() error
	SetBootImage() error
}

// Rebooter restarts the device
type Rebooter interface {
	Reboot(reason string)
}

// LinkTuner asks the transport for a faster connection interval
type LinkTuner interface {
	RequestLowLatency()
}
