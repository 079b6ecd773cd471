// Package peer is the phone side of the bulb protocols: it runs the pairing
// handshake, sends encrypted commands and uploads firmware images.
package peer

import (
	"fmt"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
)

// Link carries characteristic accesses to a bulb
type Link interface {
	Write(charType bluetooth.CharacteristicType, data []byte) error
	Read(charType bluetooth.CharacteristicType) ([]byte, error)
}

// HandlerLink talks to AccessHandlers in the same process
type HandlerLink map[bluetooth.CharacteristicType]bluetooth.AccessHandler

func (l HandlerLink) Write(charType bluetooth.CharacteristicType, data []byte) error {
	h, ok := l[charType]
	if !ok {
		return fmt.Errorf("no handler for %s", charType)
	}
	return h.Write(data)
}

func (l HandlerLink) Read(charType bluetooth.CharacteristicType) ([]byte, error) {
	h, ok := l[charType]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", charType)
	}
	return h.Read(), nil
}

// Bind lets a HandlerLink stand in for a GATT server
func (l HandlerLink) SetHandler(charType bluetooth.CharacteristicType, handler bluetooth.AccessHandler) {
	l[charType] = handler
}
