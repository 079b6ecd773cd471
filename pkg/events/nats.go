package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is the subset of *nats.Conn used to emit events
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends every event as JSON on <subject>.<type>
type NATSPublisher struct {
	conn    Publisher
	subject string
	nc      *nats.Conn
}

// ConnectNATS dials url and returns a publisher on subject
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("fakebulb"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats: reconnected to %s", c.ConnectedUrl())
		}))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	p := NewNATSPublisher(nc, subject)
	p.nc = nc
	return p, nil
}

func NewNATSPublisher(conn Publisher, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("nats: failed to marshal event: %v", err)
		return
	}

	subject := p.subject + "." + string(e.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		log.Warnf("nats: failed to publish %s: %v", subject, err)
	}
}

// Close drains the connection opened by ConnectNATS
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Debugf("nats: drain: %v", err)
		p.nc.Close()
	}
}
