//go:build linux

package bluetooth

import (
	"context"
	"fmt"
	"sync"

	"github.com/paypal/gatt"
	log "github.com/sirupsen/logrus"
)

// Central is the phone side of a connection to a bulb. It satisfies the
// peer package's Link.
type Central struct {
	device gatt.Device
	mtx    sync.Mutex
	periph gatt.Peripheral
	chars  map[CharacteristicType]*gatt.Characteristic

	disconnected chan struct{}
	once         sync.Once
}

// Dial scans for a bulb advertising name, connects and discovers the bulb
// service.
func Dial(ctx context.Context, adapterID string, name string) (*Central, error) {
	deviceID, err := ParseAdapterID(adapterID)
	if err != nil {
		return nil, err
	}

	d, err := gatt.NewDevice(gatt.LnxMaxConnections(1), gatt.LnxDeviceID(deviceID, true))
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}

	c := &Central{
		device:       d,
		chars:        make(map[CharacteristicType]*gatt.Characteristic),
		disconnected: make(chan struct{}),
	}
	ready := make(chan error, 1)
	report := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	d.Handle(
		gatt.PeripheralDiscovered(func(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
			if a.LocalName != name {
				return
			}
			log.Infof("pkg bluetooth; found %q at %s (rssi %d)", name, p.ID(), rssi)
			p.Device().StopScanning()
			p.Device().Connect(p)
		}),
		gatt.PeripheralConnected(func(p gatt.Peripheral, err error) {
			if err != nil {
				report(fmt.Errorf("connect: %w", err))
				return
			}
			c.mtx.Lock()
			c.periph = p
			c.mtx.Unlock()
			report(c.discover(p))
		}),
		gatt.PeripheralDisconnected(func(p gatt.Peripheral, err error) {
			log.Infof("pkg bluetooth; ** disconnect: %s", p.ID())
			c.once.Do(func() { close(c.disconnected) })
		}),
	)

	onStateChanged := func(d gatt.Device, s gatt.State) {
		log.Infof("pkg bluetooth; state: %s", s)
		if s == gatt.StatePoweredOn {
			d.Scan([]gatt.UUID{}, false)
		}
	}
	if err := d.Init(onStateChanged); err != nil {
		return nil, fmt.Errorf("init bluetooth: %w", err)
	}

	select {
	case err := <-ready:
		if err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		d.StopScanning()
		c.Close()
		return nil, ctx.Err()
	}
}

func (c *Central) discover(p gatt.Peripheral) error {
	services, err := p.DiscoverServices([]gatt.UUID{gatt.MustParseUUID(BulbServiceUUID)})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("bulb service %s not found", BulbServiceUUID)
	}

	chars, err := p.DiscoverCharacteristics(nil, services[0])
	if err != nil {
		return fmt.Errorf("discover characteristics: %w", err)
	}
	for _, ch := range chars {
		for _, charType := range Characteristics {
			if ch.UUID().Equal(gatt.MustParseUUID(charType.UUID())) {
				c.chars[charType] = ch
			}
		}
	}
	for _, charType := range Characteristics {
		if c.chars[charType] == nil {
			return fmt.Errorf("%s characteristic not found", charType)
		}
	}
	return nil
}

func (c *Central) characteristic(charType CharacteristicType) (*gatt.Characteristic, error) {
	select {
	case <-c.disconnected:
		return nil, fmt.Errorf("bulb disconnected")
	default:
	}
	ch, ok := c.chars[charType]
	if !ok {
		return nil, fmt.Errorf("no %s characteristic", charType)
	}
	return ch, nil
}

// Write writes data to a characteristic and waits for the response
func (c *Central) Write(charType CharacteristicType, data []byte) error {
	ch, err := c.characteristic(charType)
	if err != nil {
		return err
	}
	log.Tracef("pkg bluetooth; write on %s: %x", charType, data)
	return c.periph.WriteCharacteristic(ch, data, false)
}

// Read reads the current value of a characteristic
func (c *Central) Read(charType CharacteristicType) ([]byte, error) {
	ch, err := c.characteristic(charType)
	if err != nil {
		return nil, err
	}
	data, err := c.periph.ReadCharacteristic(ch)
	if err != nil {
		return nil, err
	}
	log.Tracef("pkg bluetooth; read on %s: %x", charType, data)
	return data, nil
}

// Close drops the connection to the bulb
func (c *Central) Close() {
	c.mtx.Lock()
	p := c.periph
	c.mtx.Unlock()
	if p != nil {
		c.device.CancelConnection(p)
	}
}
