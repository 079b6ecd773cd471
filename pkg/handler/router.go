// Package handler binds the pairing, OTA and command state machines to the
// bulb's GATT characteristics.
package handler

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/command"
	"github.com/jwoglom/fakebulb/pkg/dispatcher"
	"github.com/jwoglom/fakebulb/pkg/events"
	"github.com/jwoglom/fakebulb/pkg/ota"
	"github.com/jwoglom/fakebulb/pkg/pairing"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

// Transport is the GATT server the router registers with
type Transport interface {
	SetHandler(charType bluetooth.CharacteristicType, handler bluetooth.AccessHandler)
	SetConnectionHandler(handler bluetooth.ConnectionHandler)
	RefreshName(name string, state bluetooth.AdvertisedState) error
	RequestLowLatency()
}

// Store persists the credential
type Store interface {
	pairing.CredentialStore
	ResetCredential() error
	Factory() pairing.Credential
}

// Config holds the collaborators of a Router
type Config struct {
	Queue     *dispatcher.Queue
	Store     Store
	Transport Transport
	Flash     ota.Flash
	Rebooter  ota.Rebooter
	Sink      events.Sink

	OTAOptions []ota.Option
}

// Router owns the per-connection protocol state of the bulb
type Router struct {
	queue     *dispatcher.Queue
	store     Store
	transport Transport
	rebooter  ota.Rebooter
	sink      events.Sink

	session   *pairing.Session
	transfer  *ota.Transfer
	decryptor *command.Decryptor

	connected    bool
	connectionID string
}

// NewRouter creates the state machines and registers them with the transport
func NewRouter(cfg Config) *Router {
	r := &Router{
		queue:     cfg.Queue,
		store:     cfg.Store,
		transport: cfg.Transport,
		rebooter:  cfg.Rebooter,
		sink:      cfg.Sink,
	}
	if r.sink == nil {
		r.sink = events.Nop{}
	}

	r.session = pairing.NewSession(cfg.Store, cfg.Store.Factory(),
		pairing.WithPairedCallback(r.onPaired))
	r.decryptor = command.NewDecryptor(r.session)

	opts := []ota.Option{
		ota.WithLinkTuner(cfg.Transport),
		ota.WithStatusCallback(r.onOTAStatus),
	}
	r.transfer = ota.New(cfg.Flash, rebootFunc(r.reboot), cfg.Queue, append(opts, cfg.OTAOptions...)...)

	r.register()
	return r
}

func (r *Router) register() {
	handlers := map[bluetooth.CharacteristicType]bluetooth.AccessHandler{
		bluetooth.CharPairing: &pairingHandler{session: r.session, router: r},
		bluetooth.CharOTA:     r.transfer,
		bluetooth.CharCommand: &commandHandler{decryptor: r.decryptor, router: r},
	}
	for charType, h := range handlers {
		r.transport.SetHandler(charType, r.queue.Wrap(&observed{charType: charType, inner: h, router: r}))
		log.Debugf("Registered handler for %s", charType)
	}

	r.transport.SetConnectionHandler(func(connected bool) {
		r.queue.Post(func() { r.onConnection(connected) })
	})
}

func (r *Router) onConnection(connected bool) {
	r.connected = connected
	if connected {
		r.connectionID = uuid.NewString()
		r.session.Reset()
		log.Infof("Central connected, connection %s", r.connectionID)
		r.sink.Publish(r.event(events.TypeConnected))
		return
	}

	log.Infof("Central disconnected, connection %s", r.connectionID)
	r.sink.Publish(r.event(events.TypeDisconnected))
	r.connectionID = ""
}

// event returns an event stamped with the current connection and states
func (r *Router) event(t events.Type) events.Event {
	e := events.New(t)
	e.ConnectionID = r.connectionID
	e.PairingState = string(r.session.State())
	e.OTAState = r.transfer.State().String()
	return e
}

func (r *Router) onPaired(c pairing.Credential) {
	if err := r.transport.RefreshName(c.NameString(), bluetooth.AdvertisedPaired); err != nil {
		log.Errorf("Could not refresh advertised name: %v", err)
	}
	e := r.event(events.TypePairing)
	e.Message = fmt.Sprintf("paired as %q", c.NameString())
	r.sink.Publish(e)
}

func (r *Router) onOTAStatus(s protocol.OTAStatus) {
	e := r.event(events.TypeOTA)
	e.ErrorCode = ota.ErrorCode(s.ErrorCode).String()
	e.Message = fmt.Sprintf("last good %d, errors %d", s.LastGoodIndex, s.ErrorCount)
	r.sink.Publish(e)
}

func (r *Router) reboot(reason string) {
	e := r.event(events.TypeReboot)
	e.Message = reason
	r.sink.Publish(e)
	r.rebooter.Reboot(reason)
}

type rebootFunc func(reason string)

func (f rebootFunc) Reboot(reason string) {
	f(reason)
}

// pairingHandler publishes a pairing event for every handshake step
type pairingHandler struct {
	session *pairing.Session
	router  *Router
}

func (p *pairingHandler) Write(data []byte) error {
	err := p.session.Write(data)
	e := p.router.event(events.TypePairing)
	if err != nil {
		e.ErrorCode = pairingErrorCode(err)
	}
	p.router.sink.Publish(e)
	return err
}

func (p *pairingHandler) Read() []byte {
	return p.session.Read()
}

func pairingErrorCode(err error) string {
	switch {
	case errors.Is(err, pairing.ErrWrongState):
		return "WRONG_STATE"
	case errors.Is(err, pairing.ErrUnknownCmd):
		return "UNKNOWN_CMD"
	case errors.Is(err, pairing.ErrUnmatchingNonce):
		return "UNMATCHING_NONCE"
	}
	return "ERROR"
}

// OTAStatus is the JSON form of the OTA status response
type OTAStatus struct {
	State             string `json:"state"`
	ErrorCode         string `json:"error_code"`
	LastGoodIndex     uint16 `json:"last_good_index"`
	LastReceivedIndex uint16 `json:"last_received_index"`
	ErrorCount        uint8  `json:"error_count"`
}

// Status is a snapshot of the bulb for monitoring
type Status struct {
	Connected    bool      `json:"connected"`
	ConnectionID string    `json:"connection_id,omitempty"`
	PairingState string    `json:"pairing_state"`
	MeshName     string    `json:"mesh_name"`
	Paired       bool      `json:"paired"`
	OTA          OTAStatus `json:"ota"`
}

// ErrStopped is returned when the dispatcher no longer accepts work
var ErrStopped = errors.New("handler: dispatcher stopped")

// Status returns a snapshot taken on the dispatcher
func (r *Router) Status() (Status, error) {
	var (
		s   Status
		err error
	)
	ok := r.queue.Do(func() {
		s.Connected = r.connected
		s.ConnectionID = r.connectionID
		s.PairingState = string(r.session.State())

		var c pairing.Credential
		c, err = r.store.LoadCredential()
		if err != nil {
			return
		}
		s.MeshName = c.NameString()
		s.Paired = c.IsPaired()

		o := r.transfer.Status()
		s.OTA = OTAStatus{
			State:             ota.State(o.State).String(),
			ErrorCode:         ota.ErrorCode(o.ErrorCode).String(),
			LastGoodIndex:     o.LastGoodIndex,
			LastReceivedIndex: o.LastReceivedIndex,
			ErrorCount:        o.ErrorCount,
		}
	})
	if !ok {
		return s, ErrStopped
	}
	return s, err
}

// FactoryReset forgets the paired credential and restarts the handshake
func (r *Router) FactoryReset() error {
	var err error
	ok := r.queue.Do(func() {
		if err = r.store.ResetCredential(); err != nil {
			return
		}
		r.session.Reset()

		factory := r.store.Factory()
		if rerr := r.transport.RefreshName(factory.NameString(), bluetooth.AdvertisedUnpaired); rerr != nil {
			log.Errorf("Could not refresh advertised name: %v", rerr)
		}
		r.sink.Publish(r.event(events.TypeFactoryReset))
	})
	if !ok {
		return ErrStopped
	}
	return err
}
