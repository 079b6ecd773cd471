package peer

import (
	"fmt"

	"github.com/jwoglom/fakebulb/pkg/ota"
)

// UnexpectedResponseError is returned when the bulb answers a pairing read
// with an opcode other than the one the handshake step expects.
type UnexpectedResponseError struct {
	Step     string
	Expected byte
	Actual   byte
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("%s: expected opcode 0x%02x, got 0x%02x", e.Step, e.Expected, e.Actual)
}

// StatusError is returned when the OTA status read reports a failure
type StatusError struct {
	Phase     string
	State     ota.State
	ErrorCode ota.ErrorCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: bulb reports %s in %s", e.Phase, e.ErrorCode, e.State)
}
