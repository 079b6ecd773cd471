// Package pairing implements the bulb side of the mesh pairing handshake:
// nonce authentication against the stored credential, session key derivation
// and reception of a new mesh name and password.
package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/crypto"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

// State is a pairing state machine state
type State string

const (
	StateInit             State = "INIT"
	StateNonceReceived    State = "NONCE_RECEIVED"
	StateSessionKeyRead   State = "SESSION_KEY_READ"
	StateMeshNameReceived State = "MESH_NAME_RECEIVED"
)

// Opcodes carried in the first byte of pairing writes and read responses
const (
	OpMeshName        byte = 0x04
	OpMeshPassword    byte = 0x05
	OpReadSessionKey  byte = 0x07
	OpNonce           byte = 0x0C
	OpReadDeviceToken byte = 0x0D
	OpError           byte = 0x0E
)

const (
	nonceSize     = 8
	challengeSize = 8

	eventNonce        = "nonce"
	eventToken        = "token"
	eventMeshName     = "meshName"
	eventMeshPassword = "meshPassword"
)

// Errors returned by Write
var (
	ErrWrongState      = errors.New("pairing: wrong state")
	ErrUnknownCmd      = errors.New("pairing: unknown command")
	ErrUnmatchingNonce = errors.New("pairing: unmatching nonce")
)

// Session is the per-connection pairing context. It is not safe for
// concurrent use; callers serialize access through the dispatcher.
type Session struct {
	fsm      *fsm.FSM
	store    CredentialStore
	factory  Credential
	random   func(n int) ([]byte, error)
	onPaired func(c Credential)

	nonce      [crypto.BlockSize]byte
	hash       [crypto.BlockSize]byte
	sessionKey [crypto.BlockSize]byte

	pendingName        [NameSize]byte
	pendingPassword    [PasswordSize]byte
	hasPendingName     bool
	hasPendingPassword bool

	lastErr error
}

// Option configures a Session
type Option func(*Session)

// WithRandom replaces the source of challenge bytes
func WithRandom(random func(n int) ([]byte, error)) Option {
	return func(s *Session) {
		s.random = random
	}
}

// WithPairedCallback is called after a new credential has been persisted,
// typically to refresh the advertised name.
func WithPairedCallback(cb func(c Credential)) Option {
	return func(s *Session) {
		s.onPaired = cb
	}
}

// NewSession creates a session in INIT. factory is the credential of a
// never-paired bulb.
func NewSession(store CredentialStore, factory Credential, opts ...Option) *Session {
	s := &Session{
		store:   store,
		factory: factory,
		random:  crypto.RandomBytes,
	}

	s.fsm = fsm.NewFSM(
		string(StateInit),
		fsm.Events{
			{Name: eventNonce, Src: []string{string(StateInit)}, Dst: string(StateNonceReceived)},
			{Name: eventToken, Src: []string{string(StateNonceReceived)}, Dst: string(StateSessionKeyRead)},
			{Name: eventMeshName, Src: []string{string(StateSessionKeyRead)}, Dst: string(StateMeshNameReceived)},
			// SESSION_KEY_READ doubles as the "ready" state once the password arrives.
			{Name: eventMeshPassword, Src: []string{string(StateMeshNameReceived)}, Dst: string(StateSessionKeyRead)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("pairing: %s -> %s (%s)", e.Src, e.Dst, e.Event)
			},
		},
	)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	return State(s.fsm.Current())
}

// LastError returns the error of the most recent write, nil on success
func (s *Session) LastError() error {
	return s.lastErr
}

// SessionKey returns the derived key; ok is false unless the session is in
// SESSION_KEY_READ.
func (s *Session) SessionKey() (key [crypto.BlockSize]byte, ok bool) {
	if s.State() != StateSessionKeyRead {
		return key, false
	}
	return s.sessionKey, true
}

// Reset returns the session to INIT and forgets all session material. Called
// on every new connection.
func (s *Session) Reset() {
	s.fsm.SetState(string(StateInit))
	s.nonce = [crypto.BlockSize]byte{}
	s.hash = [crypto.BlockSize]byte{}
	s.sessionKey = [crypto.BlockSize]byte{}
	s.clearPending()
	s.lastErr = nil
}

func (s *Session) clearPending() {
	s.pendingName = [NameSize]byte{}
	s.pendingPassword = [PasswordSize]byte{}
	s.hasPendingName = false
	s.hasPendingPassword = false
}

// Write handles a write to the pairing characteristic
func (s *Session) Write(data []byte) error {
	s.lastErr = s.write(data)
	return s.lastErr
}

func (s *Session) write(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write", ErrUnknownCmd)
	}

	opcode, payload := data[0], data[1:]
	switch opcode {
	case OpNonce:
		if !s.fsm.Can(eventNonce) {
			return s.wrongState(opcode)
		}
		if len(payload) < nonceSize*2 {
			return fmt.Errorf("%w: nonce payload is %d bytes", ErrUnknownCmd, len(payload))
		}
		return s.handleNonce(payload[:nonceSize], payload[nonceSize:nonceSize*2])

	case OpMeshName:
		if !s.fsm.Can(eventMeshName) {
			return s.wrongState(opcode)
		}
		if len(payload) < protocol.PairingPayloadSize {
			return fmt.Errorf("%w: name payload is %d bytes", ErrUnknownCmd, len(payload))
		}
		plain, err := crypto.Decrypt(s.sessionKey[:], payload[:protocol.PairingPayloadSize])
		if err != nil {
			return err
		}
		copy(s.pendingName[:], plain[:NameSize])
		s.hasPendingName = true
		return s.transition(eventMeshName)

	case OpMeshPassword:
		if !s.fsm.Can(eventMeshPassword) {
			return s.wrongState(opcode)
		}
		if len(payload) < protocol.PairingPayloadSize {
			return fmt.Errorf("%w: password payload is %d bytes", ErrUnknownCmd, len(payload))
		}
		plain, err := crypto.Decrypt(s.sessionKey[:], payload[:protocol.PairingPayloadSize])
		if err != nil {
			return err
		}
		copy(s.pendingPassword[:], plain)
		s.hasPendingPassword = true
		return s.transition(eventMeshPassword)

	default:
		return fmt.Errorf("%w: opcode 0x%02x", ErrUnknownCmd, opcode)
	}
}

func (s *Session) wrongState(opcode byte) error {
	return fmt.Errorf("%w: opcode 0x%02x in %s", ErrWrongState, opcode, s.State())
}

func (s *Session) transition(event string) error {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongState, err)
	}
	return nil
}

func (s *Session) handleNonce(nonce, cipher []byte) error {
	hash, err := s.credentialHash()
	if err != nil {
		return err
	}

	expected, err := crypto.Encrypt(nonce, hash[:])
	if err != nil {
		return err
	}

	// Only the first half of the encrypted hash travels on the wire.
	for i := 0; i < nonceSize; i++ {
		if expected[i] != cipher[i] {
			s.nonce = [crypto.BlockSize]byte{}
			return ErrUnmatchingNonce
		}
	}

	s.nonce = [crypto.BlockSize]byte{}
	copy(s.nonce[:], nonce)
	s.hash = hash
	return s.transition(eventNonce)
}

// credentialHash computes pad16(name) XOR pad16(password). A bulb still
// carrying the factory name authenticates with the factory password.
func (s *Session) credentialHash() ([crypto.BlockSize]byte, error) {
	var hash [crypto.BlockSize]byte

	cred, err := s.store.LoadCredential()
	if err != nil {
		return hash, fmt.Errorf("load credential: %w", err)
	}

	password := cred.Password
	if cred.Name == s.factory.Name {
		password = s.factory.Password
	}

	copy(hash[:], crypto.XOR(crypto.Pad16(cred.Name[:]), crypto.Pad16(password[:])))
	return hash, nil
}

// Read handles a read of the pairing characteristic
func (s *Session) Read() []byte {
	rsp := &protocol.PairingResponse{Opcode: OpError}

	switch s.State() {
	case StateNonceReceived:
		challenge, err := s.random(challengeSize)
		if err != nil || len(challenge) < challengeSize {
			log.Errorf("pairing: could not generate challenge: %v", err)
			break
		}

		var block [crypto.BlockSize]byte
		copy(block[:nonceSize], s.nonce[:nonceSize])
		copy(block[nonceSize:], challenge[:challengeSize])
		key, err := crypto.Encrypt(s.hash[:], block[:])
		if err != nil {
			log.Errorf("pairing: could not derive session key: %v", err)
			break
		}
		if err := s.transition(eventToken); err != nil {
			log.Errorf("pairing: %v", err)
			break
		}

		copy(s.sessionKey[:], key)
		rsp.Opcode = OpReadDeviceToken
		copy(rsp.Payload[:], challenge[:challengeSize])
		log.Info("pairing: session key derived")

	case StateSessionKeyRead:
		if !s.hasPendingName || !s.hasPendingPassword {
			break
		}

		cred := Credential{
			Name:        s.pendingName,
			Password:    s.pendingPassword,
			PairingFlag: FlagPaired,
		}
		if err := s.store.SaveCredential(cred); err != nil {
			log.Errorf("pairing: could not persist credential: %v", err)
			break
		}
		s.clearPending()

		log.Infof("pairing: new mesh name %q accepted", cred.NameString())
		if s.onPaired != nil {
			s.onPaired(cred)
		}
		rsp.Opcode = OpReadSessionKey
	}

	return rsp.Marshal()
}
