// Package events describes what happens on the emulated bulb so that it can be
// streamed to monitoring clients.
package events

import (
	"encoding/hex"
	"time"
)

// Type names an event
type Type string

const (
	TypeConnected    Type = "connected"
	TypeDisconnected Type = "disconnected"
	TypeWrite        Type = "write"
	TypeRead         Type = "read"
	TypePairing      Type = "pairing"
	TypeOTA          Type = "ota"
	TypeCommand      Type = "command"
	TypeFactoryReset Type = "factory_reset"
	TypeReboot       Type = "reboot"
)

// Event is one observable step of the bulb
type Event struct {
	Type           Type      `json:"type"`
	Time           time.Time `json:"time"`
	ConnectionID   string    `json:"connection_id,omitempty"`
	Characteristic string    `json:"characteristic,omitempty"`
	Data           string    `json:"data,omitempty"`
	Message        string    `json:"message,omitempty"`
	PairingState   string    `json:"pairing_state,omitempty"`
	OTAState       string    `json:"ota_state,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
}

// New returns an event of type t stamped with the current time
func New(t Type) Event {
	return Event{Type: t, Time: time.Now()}
}

// WithData sets Data to the hex encoding of data
func (e Event) WithData(data []byte) Event {
	e.Data = hex.EncodeToString(data)
	return e
}

// Sink receives events. Publish must not block the caller for long.
type Sink interface {
	Publish(e Event)
}

// Multi fans an event out to several sinks
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(Event) {}
