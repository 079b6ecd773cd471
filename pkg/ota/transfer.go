package ota

//go:generate mockgen -source ota.go -destination ../../mocks/ota.go -package mocks -mock_names Flash=Flash,Rebooter=Rebooter,LinkTuner=LinkTuner

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/dispatcher"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

const (
	DefaultMaxErrors         = 5
	DefaultInactivityTimeout = 10 * time.Second
	DefaultRebootDelay       = 500 * time.Millisecond
)

// ErrAborted is returned for accesses after the transfer was abandoned
var ErrAborted = errors.New("ota: transfer aborted, waiting for reboot")

// Transfer is the OTA state machine. All methods, including timer callbacks,
// must run on the same dispatcher queue.
type Transfer struct {
	flash    Flash
	rebooter Rebooter
	sched    dispatcher.Scheduler
	link     LinkTuner
	onChange func(protocol.OTAStatus)

	maxErrors   int
	inactivity  time.Duration
	rebootDelay time.Duration

	state        State
	errorCode    ErrorCode
	chunkSize    int
	sectors      uint8
	lastGood     uint16
	lastReceived uint16
	errorCount   uint8

	timer        dispatcher.Timer
	timerGen     uint64
	bootSwitched bool
	aborted      bool
}

// Option configures a Transfer
type Option func(*Transfer)

func WithMaxErrors(n int) Option {
	return func(t *Transfer) {
		t.maxErrors = n
	}
}

func WithInactivityTimeout(d time.Duration) Option {
	return func(t *Transfer) {
		t.inactivity = d
	}
}

func WithRebootDelay(d time.Duration) Option {
	return func(t *Transfer) {
		t.rebootDelay = d
	}
}

// WithLinkTuner sets the transport asked for low latency once erase succeeds
func WithLinkTuner(l LinkTuner) Option {
	return func(t *Transfer) {
		t.link = l
	}
}

// WithStatusCallback is called with the new status after every write
func WithStatusCallback(cb func(protocol.OTAStatus)) Option {
	return func(t *Transfer) {
		t.onChange = cb
	}
}

// New creates a transfer in IDLING
func New(flash Flash, rebooter Rebooter, sched dispatcher.Scheduler, opts ...Option) *Transfer {
	t := &Transfer{
		flash:       flash,
		rebooter:    rebooter,
		sched:       sched,
		maxErrors:   DefaultMaxErrors,
		inactivity:  DefaultInactivityTimeout,
		rebootDelay: DefaultRebootDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transfer) State() State {
	return t.state
}

// Status returns the current status response
func (t *Transfer) Status() protocol.OTAStatus {
	return protocol.OTAStatus{
		State:             uint8(t.state),
		ErrorCode:         uint8(t.errorCode),
		LastGoodIndex:     t.lastGood,
		LastReceivedIndex: t.lastReceived,
		ErrorCount:        t.errorCount,
	}
}

// Write handles a write to the OTA characteristic
func (t *Transfer) Write(data []byte) error {
	if t.aborted {
		return ErrAborted
	}
	err := t.write(data)
	if t.onChange != nil {
		t.onChange(t.Status())
	}
	return err
}

func (t *Transfer) write(data []byte) error {
	switch t.state {
	case StateIdling:
		return t.erase(data)

	case StateErased:
		t.armInactivity()
		t.state = StateStarted
		return t.write(data)

	case StateStarted:
		t.armInactivity()
		return t.chunk(data)

	case StateCompleted:
		if err := t.flash.Commit(); err != nil {
			return t.fail(WriteFailed, fmt.Errorf("commit: %w", err))
		}
		return nil
	}

	return t.fail(WrongState, fmt.Errorf("write in %s", t.state))
}

func (t *Transfer) erase(data []byte) error {
	if len(data) < 3 {
		return t.fail(WrongState, fmt.Errorf("erase frame is %d bytes", len(data)))
	}

	t.sectors = data[2]
	t.state = StateErasing
	if err := t.flash.Open(int64(t.sectors) * SectorSize); err != nil {
		// Not counted against the error budget.
		t.state = StateIdling
		t.errorCode = FWTooBig
		log.Warnf("ota: cannot reserve %d sectors: %v", t.sectors, err)
		return &Error{Code: FWTooBig, Err: err}
	}

	t.state = StateErased
	t.errorCode = Success
	if len(data) > protocol.ChunkOverhead {
		t.chunkSize = len(data) - protocol.ChunkOverhead
	}
	if t.link != nil {
		t.link.RequestLowLatency()
	}
	log.Infof("ota: erased %d sectors, chunk size %d", t.sectors, t.chunkSize)
	return nil
}

func (t *Transfer) chunk(data []byte) error {
	if len(data) == protocol.ChunkOverhead {
		t.stopInactivity()
		t.state = StateCompleted
		if err := t.flash.Commit(); err != nil {
			return t.fail(WriteFailed, fmt.Errorf("commit: %w", err))
		}
		t.errorCode = Success
		log.Infof("ota: transfer complete, %d chunks", t.lastGood)
		return nil
	}

	if t.chunkSize == 0 && len(data) > protocol.ChunkOverhead {
		t.chunkSize = len(data) - protocol.ChunkOverhead
	}
	if len(data)-protocol.ChunkOverhead != t.chunkSize {
		return t.fail(WriteFailed, fmt.Errorf("chunk of %d bytes, expected %d", len(data)-protocol.ChunkOverhead, t.chunkSize))
	}

	if computed, received := protocol.ChunkChecksum(data); computed != received {
		return t.fail(CRCFailed, fmt.Errorf("crc 0x%04x, trailer 0x%04x", computed, received))
	}

	index := binary.LittleEndian.Uint16(data[0:2])
	t.lastReceived = index

	// The first chunk is accepted whatever its index. Index 0 maps to a
	// negative offset and fails in the flash write.
	if t.lastGood != 0 {
		if index != t.lastGood+1 || int64(index)*int64(t.chunkSize) > int64(t.sectors)*SectorSize {
			return t.fail(MissingPart, fmt.Errorf("chunk %d after %d", index, t.lastGood))
		}
	}

	offset := (int64(index) - 1) * int64(t.chunkSize)
	if _, err := t.flash.WriteAt(data[2:len(data)-2], offset); err != nil {
		return t.fail(WriteFailed, fmt.Errorf("write chunk %d: %w", index, err))
	}

	t.lastGood = index
	t.errorCode = Success
	log.Tracef("ota: chunk %d ok", index)
	return nil
}

// fail records code, counts the error and aborts once the budget is spent
func (t *Transfer) fail(code ErrorCode, err error) error {
	t.errorCode = code
	t.errorCount++
	log.Warnf("ota: %s (%d/%d): %v", code, t.errorCount, t.maxErrors, err)

	if int(t.errorCount) >= t.maxErrors {
		t.abort(fmt.Sprintf("ota error budget exhausted after %s", code))
	}
	return &Error{Code: code, Err: err}
}

func (t *Transfer) abort(reason string) {
	t.stopInactivity()
	t.aborted = true
	if err := t.flash.Abort(); err != nil {
		log.Errorf("ota: abort staging: %v", err)
	}
	log.Errorf("ota: %s, rebooting", reason)
	t.rebooter.Reboot(reason)
}

// Read handles a read of the OTA characteristic. The first read that sees a
// successfully completed transfer selects the new image and schedules a reboot.
func (t *Transfer) Read() []byte {
	if !t.aborted && !t.bootSwitched && t.state == StateCompleted && t.errorCode == Success {
		if err := t.flash.SetBootImage(); err != nil {
			t.fail(WriteFailed, fmt.Errorf("set boot image: %w", err))
		} else {
			t.bootSwitched = true
			log.Infof("ota: new image selected, rebooting in %s", t.rebootDelay)
			t.sched.AfterFunc(t.rebootDelay, func() {
				t.rebooter.Reboot("ota update complete")
			})
		}
	}

	status := t.Status()
	return status.Marshal()
}

func (t *Transfer) armInactivity() {
	t.stopInactivity()
	gen := t.timerGen
	t.timer = t.sched.AfterFunc(t.inactivity, func() {
		t.inactivityExpired(gen)
	})
}

func (t *Transfer) stopInactivity() {
	t.timerGen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Transfer) inactivityExpired(gen uint64) {
	if gen != t.timerGen || t.aborted {
		return
	}
	if t.state != StateErased && t.state != StateStarted {
		return
	}
	t.abort(fmt.Sprintf("no ota data for %s", t.inactivity))
}
