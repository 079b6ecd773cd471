//go:build !linux

package bluetooth

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Ble represents the Bluetooth Low Energy device (stub for non-Linux platforms)
type Ble struct {
	mtx               sync.RWMutex
	handlers          map[CharacteristicType]AccessHandler
	connectionHandler ConnectionHandler
	name              string
	advState          AdvertisedState
}

// New creates a new BLE device (stub for non-Linux platforms)
func New(adapterID string, name string, state AdvertisedState) (*Ble, error) {
	log.Warn("Bluetooth is only supported on Linux. Creating stub BLE instance.")
	return &Ble{
		handlers: make(map[CharacteristicType]AccessHandler),
		name:     name,
		advState: state,
	}, nil
}

// SetHandler binds an AccessHandler to a characteristic
func (b *Ble) SetHandler(charType CharacteristicType, handler AccessHandler) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.handlers[charType] = handler
}

// SetConnectionHandler sets the callback for when a central connects or disconnects (no-op on non-Linux)
func (b *Ble) SetConnectionHandler(handler ConnectionHandler) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.connectionHandler = handler
}

// RefreshName records the new advertised name (stub)
func (b *Ble) RefreshName(name string, state AdvertisedState) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.name = name
	b.advState = state
	log.Debugf("RefreshName(%q, %s) called on non-Linux platform (no-op)", name, state)
	return nil
}

// RequestLowLatency is a no-op on non-Linux platforms
func (b *Ble) RequestLowLatency() {
	log.Debug("RequestLowLatency called on non-Linux platform (no-op)")
}

// IsConnected returns true if a central device is connected (always false on non-Linux)
func (b *Ble) IsConnected() bool {
	return false
}

// ShutdownConnection closes the connection with the central device (no-op)
func (b *Ble) ShutdownConnection() {
	log.Debug("ShutdownConnection called on non-Linux platform (no-op)")
}
