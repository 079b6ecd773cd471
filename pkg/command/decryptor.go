// Package command validates and decrypts application command packets using
// the key negotiated by the pairing handshake.
package command

import (
	"errors"
	"fmt"

	"github.com/jwoglom/fakebulb/pkg/crypto"
)

const (
	// PacketSize is the size of the encrypted region of a command packet
	PacketSize = crypto.BlockSize
	// MaxPayload is the largest payload that fits next to the crc and length bytes
	MaxPayload = PacketSize - 2
)

// ErrNoPairing is returned while no session key has been negotiated
var ErrNoPairing = errors.New("command: no pairing")

// KeySource exposes the session key of the current pairing session
type KeySource interface {
	SessionKey() ([crypto.BlockSize]byte, bool)
}

// CRCMismatchError is returned when the decrypted packet fails its CRC-8
type CRCMismatchError struct {
	Expected uint8
	Computed uint8
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("command: crc mismatch: packet carries 0x%02x, computed 0x%02x", e.Expected, e.Computed)
}

// Decryptor decrypts command packets. It never changes pairing state.
type Decryptor struct {
	keys KeySource
}

func NewDecryptor(keys KeySource) *Decryptor {
	return &Decryptor{keys: keys}
}

// Decrypt returns the plaintext payload of a command packet
func (d *Decryptor) Decrypt(packet []byte) ([]byte, error) {
	key, ok := d.keys.SessionKey()
	if !ok {
		return nil, ErrNoPairing
	}
	if len(packet) < PacketSize {
		return nil, fmt.Errorf("command: packet is %d bytes, need %d", len(packet), PacketSize)
	}

	plain, err := crypto.Decrypt(key[:], packet[:PacketSize])
	if err != nil {
		return nil, err
	}

	length := int(plain[1])
	if length > MaxPayload {
		return nil, fmt.Errorf("command: payload length %d exceeds %d", length, MaxPayload)
	}

	computed := crypto.CRC8(plain[1 : 2+length])
	if computed != plain[0] {
		return nil, &CRCMismatchError{Expected: plain[0], Computed: computed}
	}

	return append([]byte(nil), plain[2:2+length]...), nil
}

// Encrypt builds a command packet for payload
func Encrypt(key []byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("command: payload length %d exceeds %d", len(payload), MaxPayload)
	}

	plain := make([]byte, PacketSize)
	plain[1] = byte(len(payload))
	copy(plain[2:], payload)
	plain[0] = crypto.CRC8(plain[1 : 2+len(payload)])

	return crypto.Encrypt(key, plain)
}
