package peer

import (
	"fmt"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/command"
	"github.com/jwoglom/fakebulb/pkg/crypto"
	"github.com/jwoglom/fakebulb/pkg/pairing"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

const nonceSize = 8

// Pairer runs the pairing handshake against a bulb
type Pairer struct {
	link   Link
	random func(n int) ([]byte, error)
}

// PairerOption configures a Pairer
type PairerOption func(*Pairer)

// WithNonceSource replaces the random nonce generator
func WithNonceSource(random func(n int) ([]byte, error)) PairerOption {
	return func(p *Pairer) {
		p.random = random
	}
}

func NewPairer(link Link, opts ...PairerOption) *Pairer {
	p := &Pairer{link: link, random: crypto.RandomBytes}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Login authenticates with the bulb's current credential and returns the
// session key of this connection.
func (p *Pairer) Login(current pairing.Credential) ([crypto.BlockSize]byte, error) {
	var key [crypto.BlockSize]byte

	nonce, err := p.random(nonceSize)
	if err != nil {
		return key, fmt.Errorf("generate nonce: %w", err)
	}
	hash := crypto.XOR(crypto.Pad16(current.Name[:]), crypto.Pad16(current.Password[:]))

	cipher, err := crypto.Encrypt(nonce, hash)
	if err != nil {
		return key, err
	}

	req := append([]byte{pairing.OpNonce}, nonce...)
	req = append(req, cipher[:nonceSize]...)
	if err := p.link.Write(bluetooth.CharPairing, req); err != nil {
		return key, fmt.Errorf("send nonce: %w", err)
	}

	rsp, err := p.readPairing("read device token", pairing.OpReadDeviceToken)
	if err != nil {
		return key, err
	}

	block := append(append([]byte(nil), nonce...), rsp.Payload[:nonceSize]...)
	derived, err := crypto.Encrypt(hash, block)
	if err != nil {
		return key, err
	}
	copy(key[:], derived)
	return key, nil
}

// Pair logs in with current and installs a new mesh name and password
func (p *Pairer) Pair(current pairing.Credential, name, password string) ([crypto.BlockSize]byte, error) {
	next, err := pairing.NewCredential(name, password, pairing.FlagPaired)
	if err != nil {
		return [crypto.BlockSize]byte{}, err
	}

	key, err := p.Login(current)
	if err != nil {
		return key, err
	}

	if err := p.writeEncrypted(pairing.OpMeshName, key, next.Name[:]); err != nil {
		return key, fmt.Errorf("send mesh name: %w", err)
	}
	if err := p.writeEncrypted(pairing.OpMeshPassword, key, next.Password[:]); err != nil {
		return key, fmt.Errorf("send mesh password: %w", err)
	}

	if _, err := p.readPairing("confirm credential", pairing.OpReadSessionKey); err != nil {
		return key, err
	}
	return key, nil
}

// SendCommand encrypts payload with the session key and writes it to the
// command characteristic.
func (p *Pairer) SendCommand(key [crypto.BlockSize]byte, payload []byte) error {
	packet, err := command.Encrypt(key[:], payload)
	if err != nil {
		return err
	}
	return p.link.Write(bluetooth.CharCommand, packet)
}

func (p *Pairer) writeEncrypted(opcode byte, key [crypto.BlockSize]byte, plain []byte) error {
	enc, err := crypto.Encrypt(key[:], plain)
	if err != nil {
		return err
	}
	return p.link.Write(bluetooth.CharPairing, append([]byte{opcode}, enc...))
}

func (p *Pairer) readPairing(step string, expected byte) (*protocol.PairingResponse, error) {
	data, err := p.link.Read(bluetooth.CharPairing)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	rsp, err := protocol.ParsePairingResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if rsp.Opcode != expected {
		return nil, &UnexpectedResponseError{Step: step, Expected: expected, Actual: rsp.Opcode}
	}
	return rsp, nil
}
