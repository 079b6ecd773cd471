//go:build linux

package bluetooth

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/paypal/gatt"
	"github.com/paypal/gatt/linux/cmd"
	log "github.com/sirupsen/logrus"
)

const (
	advTypeSomeUUID16 = 0x02
	advTypeTxPower    = 0x0A
	manufacturerID    = 0x0211
)

// Ble represents the Bluetooth Low Energy device
type Ble struct {
	device  *gatt.Device
	central gatt.Central
	mtx     sync.RWMutex

	// Handlers
	handlers          map[CharacteristicType]AccessHandler
	connectionHandler ConnectionHandler

	name     string
	advState AdvertisedState
}

// serverOptions returns the options for the BLE server on Linux
func serverOptions(deviceID int) []gatt.Option {
	return []gatt.Option{
		gatt.LnxMaxConnections(1),
		gatt.LnxDeviceID(deviceID, true),
		gatt.LnxSetAdvertisingParameters(&cmd.LESetAdvertisingParameters{
			AdvertisingIntervalMin: 0x00f4,
			AdvertisingIntervalMax: 0x00f4,
			AdvertisingChannelMap:  0x7,
		}),
	}
}

// New opens the HCI adapter and starts serving the bulb service
func New(adapterID string, name string, state AdvertisedState) (*Ble, error) {
	deviceID, err := ParseAdapterID(adapterID)
	if err != nil {
		return nil, err
	}

	d, err := gatt.NewDevice(serverOptions(deviceID)...)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}

	b := &Ble{
		device:   &d,
		handlers: make(map[CharacteristicType]AccessHandler),
		name:     name,
		advState: state,
	}

	d.Handle(
		gatt.CentralConnected(func(c gatt.Central) {
			log.Infof("pkg bluetooth; ** new connection from: %s", c.ID())
			b.mtx.Lock()
			b.central = c
			handler := b.connectionHandler
			b.mtx.Unlock()
			if handler != nil {
				handler(true)
			}
		}),
		gatt.CentralDisconnected(func(c gatt.Central) {
			log.Infof("pkg bluetooth; ** disconnect: %s", c.ID())
			b.mtx.Lock()
			b.central = nil
			handler := b.connectionHandler
			b.mtx.Unlock()
			if handler != nil {
				handler(false)
			}
		}),
	)

	// Handler for when the device is powered on
	onStateChanged := func(d gatt.Device, s gatt.State) {
		log.Infof("pkg bluetooth; state: %s", s)
		switch s {
		case gatt.StatePoweredOn:
			b.setupService(d)
		default:
		}
	}

	if err := d.Init(onStateChanged); err != nil {
		return nil, fmt.Errorf("init bluetooth: %w", err)
	}

	return b, nil
}

// setupService creates the bulb service and its characteristics
func (b *Ble) setupService(d gatt.Device) {
	serviceUUID := gatt.MustParseUUID(BulbServiceUUID)
	s := gatt.NewService(serviceUUID)

	for _, charType := range Characteristics {
		b.addCharacteristic(s, charType)
	}

	if err := d.AddService(s); err != nil {
		log.Errorf("pkg bluetooth; could not add service: %s", err)
		return
	}

	if err := b.advertise(d); err != nil {
		log.Errorf("pkg bluetooth; could not advertise: %s", err)
		return
	}

	log.Infof("pkg bluetooth; bulb service %s is now advertising as %q", BulbServiceUUID, b.advertisedName())
}

// addCharacteristic adds a read/write characteristic backed by an AccessHandler
func (b *Ble) addCharacteristic(s *gatt.Service, charType CharacteristicType) {
	char := s.AddCharacteristic(gatt.MustParseUUID(charType.UUID()))

	char.HandleWriteFunc(func(r gatt.Request, data []byte) (status byte) {
		log.Tracef("pkg bluetooth; received write on %s: %s", charType, hex.EncodeToString(data))

		dataCopy := make([]byte, len(data))
		copy(dataCopy, data)

		if h := b.handler(charType); h != nil {
			if err := h.Write(dataCopy); err != nil {
				log.Debugf("pkg bluetooth; write on %s rejected: %v", charType, err)
			}
		}
		return gatt.StatusSuccess
	})

	char.HandleReadFunc(func(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
		var data []byte
		if h := b.handler(charType); h != nil {
			data = h.Read()
		}
		if data == nil {
			data = []byte{}
		}

		log.Tracef("pkg bluetooth; read request on %s, responding with: %s", charType, hex.EncodeToString(data))
		if _, err := rsp.Write(data); err != nil {
			log.Warnf("pkg bluetooth; failed to write read response: %v", err)
		}
	})
}

func (b *Ble) handler(charType CharacteristicType) AccessHandler {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return b.handlers[charType]
}

func (b *Ble) advertisedName() string {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return b.name
}

func (b *Ble) advertise(d gatt.Device) error {
	b.mtx.RLock()
	name, state := b.name, b.advState
	b.mtx.RUnlock()

	advPacket := &gatt.AdvPacket{}
	advPacket.AppendFlags(0x06) // LE General Discoverable + BR/EDR Not Supported
	advPacket.AppendField(advTypeSomeUUID16, uint16ToBytes(0x1910))
	advPacket.AppendField(advTypeTxPower, []byte{0x04})
	advPacket.AppendManufacturerData(manufacturerID, []byte{0x00, 0x01, state.manufacturerByte()})

	scanPacket := &gatt.AdvPacket{}
	scanPacket.AppendName(name)

	advData := &cmd.LESetAdvertisingData{
		AdvertisingDataLength: uint8(advPacket.Len()),
		AdvertisingData:       advPacket.Bytes(),
	}
	scanData := &cmd.LESetScanResponseData{
		ScanResponseDataLength: uint8(scanPacket.Len()),
		ScanResponseData:       scanPacket.Bytes(),
	}

	if err := d.Option(
		gatt.LnxSetAdvertisingData(advData),
		gatt.LnxSetScanResponseData(scanData),
	); err != nil {
		return err
	}

	return d.Option(gatt.LnxSetAdvertisingEnable(true))
}

func (b *Ble) updateAdvertising() error {
	if b.device == nil {
		return fmt.Errorf("device not initialized")
	}
	d := *b.device

	// Disable advertising before updating data
	if err := d.Option(gatt.LnxSetAdvertisingEnable(false)); err != nil {
		return fmt.Errorf("failed to disable advertising: %w", err)
	}

	return b.advertise(d)
}

func uint16ToBytes(value uint16) []byte {
	bytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(bytes, value)
	return bytes
}

// SetHandler binds an AccessHandler to a characteristic
func (b *Ble) SetHandler(charType CharacteristicType, handler AccessHandler) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.handlers[charType] = handler
}

// SetConnectionHandler sets the callback for when a central connects or disconnects
func (b *Ble) SetConnectionHandler(handler ConnectionHandler) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.connectionHandler = handler
}

// RefreshName re-advertises the bulb under a new name and pairing status
func (b *Ble) RefreshName(name string, state AdvertisedState) error {
	b.mtx.Lock()
	b.name = name
	b.advState = state
	b.mtx.Unlock()

	if err := b.updateAdvertising(); err != nil {
		return fmt.Errorf("failed to update advertising: %w", err)
	}

	log.Infof("pkg bluetooth; advertising as %q (%s)", name, state)
	return nil
}

// RequestLowLatency asks for a shorter connection interval ahead of an OTA
// transfer. gatt owns the HCI user channel but does not expose the
// connection handle, so the request is only recorded.
func (b *Ble) RequestLowLatency() {
	b.mtx.RLock()
	central := b.central
	b.mtx.RUnlock()

	if central == nil {
		log.Debug("pkg bluetooth; low latency requested without a connection")
		return
	}
	log.Infof("pkg bluetooth; low latency requested for %s (mtu %d)", central.ID(), central.MTU())
}

// IsConnected returns true if a central device is connected
func (b *Ble) IsConnected() bool {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return b.central != nil
}

// ShutdownConnection closes the connection with the central device
func (b *Ble) ShutdownConnection() {
	b.mtx.RLock()
	central := b.central
	b.mtx.RUnlock()

	if central != nil {
		if err := central.Close(); err != nil {
			log.Debugf("pkg bluetooth; error closing central connection: %v", err)
		}
	}
}
