package pairing

import (
	"bytes"
	"fmt"
)

const (
	// NameSize is the size of a mesh name on the wire and in storage
	NameSize = 8
	// PasswordSize is the size of a mesh password on the wire and in storage
	PasswordSize = 16
	// CredentialSize is the persisted size: name || password || flag
	CredentialSize = NameSize + PasswordSize + 1
)

// Pairing flags
const (
	FlagFactory byte = 0x00
	FlagPaired  byte = 0x01
)

// Credential is the long-term mesh name and password of the bulb
type Credential struct {
	Name        [NameSize]byte
	Password    [PasswordSize]byte
	PairingFlag byte
}

// NewCredential builds a credential from strings, zero-padding both fields
func NewCredential(name, password string, flag byte) (Credential, error) {
	var c Credential
	if len(name) > NameSize {
		return c, fmt.Errorf("name %q longer than %d bytes", name, NameSize)
	}
	if len(password) > PasswordSize {
		return c, fmt.Errorf("password longer than %d bytes", PasswordSize)
	}
	copy(c.Name[:], name)
	copy(c.Password[:], password)
	c.PairingFlag = flag
	return c, nil
}

// NameString returns the name without trailing zero padding
func (c Credential) NameString() string {
	return string(bytes.TrimRight(c.Name[:], "\x00"))
}

// IsPaired reports whether the credential came from a pairing exchange
func (c Credential) IsPaired() bool {
	return c.PairingFlag == FlagPaired
}

// Marshal serializes the credential to its persisted form
func (c Credential) Marshal() []byte {
	out := make([]byte, 0, CredentialSize)
	out = append(out, c.Name[:]...)
	out = append(out, c.Password[:]...)
	return append(out, c.PairingFlag)
}

// UnmarshalCredential parses the persisted form
func UnmarshalCredential(data []byte) (Credential, error) {
	var c Credential
	if len(data) != CredentialSize {
		return c, fmt.Errorf("credential must be %d bytes, got %d", CredentialSize, len(data))
	}
	copy(c.Name[:], data[:NameSize])
	copy(c.Password[:], data[NameSize:NameSize+PasswordSize])
	c.PairingFlag = data[CredentialSize-1]
	return c, nil
}

// CredentialStore persists the credential accepted by a pairing exchange
type CredentialStore interface {
	LoadCredential() (Credential, error)
	SaveCredential(c Credential) error
}
