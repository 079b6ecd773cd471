package events

import (
	"encoding/json"
	"errors"
	"testing"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.events = append(r.events, e)
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, nil, b, Nop{}}

	m.Publish(New(TypeConnected))

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("a=%d b=%d", len(a.events), len(b.events))
	}
	if a.events[0].Time.IsZero() {
		t.Error("event not timestamped")
	}
}

func TestWithData(t *testing.T) {
	e := New(TypeWrite).WithData([]byte{0x0C, 0xFF})
	if e.Data != "0cff" {
		t.Errorf("data = %q", e.Data)
	}
}

func TestNATSPublisher(t *testing.T) {
	pub := &fakePublisher{}
	p := NewNATSPublisher(pub, "fakebulb.events")

	e := New(TypeOTA)
	e.OTAState = "STARTED"
	p.Publish(e)

	if len(pub.subjects) != 1 || pub.subjects[0] != "fakebulb.events.ota" {
		t.Fatalf("subjects = %v", pub.subjects)
	}
	var got Event
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeOTA || got.OTAState != "STARTED" {
		t.Errorf("payload = %+v", got)
	}

	// Publish errors are logged, not returned.
	pub.err = errors.New("closed")
	p.Publish(New(TypeReboot))
	if len(pub.subjects) != 2 {
		t.Error("second event not attempted")
	}

	// Close is a no-op without an owned connection.
	p.Close()
}
