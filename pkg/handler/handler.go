package handler

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/command"
	"github.com/jwoglom/fakebulb/pkg/events"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

// observed logs every access to a characteristic and publishes it as an event
type observed struct {
	charType bluetooth.CharacteristicType
	inner    bluetooth.AccessHandler
	router   *Router
}

func (o *observed) Write(data []byte) error {
	protocol.LogPacket("RX", o.charType, data)

	err := o.inner.Write(data)

	e := o.router.event(events.TypeWrite).WithData(data)
	e.Characteristic = o.charType.String()
	if err != nil {
		e.Message = err.Error()
		log.Warnf("%s write rejected: %v", o.charType, err)
	}
	o.router.sink.Publish(e)
	return err
}

func (o *observed) Read() []byte {
	out := o.inner.Read()
	protocol.LogPacket("TX", o.charType, out)

	e := o.router.event(events.TypeRead).WithData(out)
	e.Characteristic = o.charType.String()
	o.router.sink.Publish(e)
	return out
}

// commandHandler decrypts writes to the command characteristic. Interpreting
// the decrypted light commands is left to the sink.
type commandHandler struct {
	decryptor *command.Decryptor
	router    *Router
}

func (c *commandHandler) Write(data []byte) error {
	payload, err := c.decryptor.Decrypt(data)
	if err != nil {
		if errors.Is(err, command.ErrNoPairing) {
			log.Warn("command received before pairing")
		}
		return err
	}

	log.Infof("command payload: % x", payload)
	e := c.router.event(events.TypeCommand).WithData(payload)
	c.router.sink.Publish(e)
	return nil
}

func (c *commandHandler) Read() []byte {
	return nil
}
