package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	bulbcommand "github.com/jwoglom/fakebulb/pkg/command"
	"github.com/jwoglom/fakebulb/pkg/pairing"
	"github.com/jwoglom/fakebulb/pkg/peer"
	"github.com/jwoglom/fakebulb/pkg/storage"
)

type commandSink struct {
	decryptor *bulbcommand.Decryptor
	payloads  [][]byte
}

func (c *commandSink) Write(data []byte) error {
	p, err := c.decryptor.Decrypt(data)
	if err != nil {
		return err
	}
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *commandSink) Read() []byte { return nil }

func newBulb(t *testing.T) (*storage.Store, *pairing.Session, *commandSink, peer.HandlerLink) {
	factory, err := pairing.NewCredential("telink_m", "123", pairing.FlagFactory)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.New(keyring.NewArrayKeyring(nil), factory)
	session := pairing.NewSession(store, factory)
	sink := &commandSink{decryptor: bulbcommand.NewDecryptor(session)}
	return store, session, sink, peer.HandlerLink{
		bluetooth.CharPairing: session,
		bluetooth.CharCommand: sink,
	}
}

func TestPairThenSend(t *testing.T) {
	store, session, sink, link := newBulb(t)
	factory := store.Factory()

	if err := commands["pair"].handler(context.Background(), link, factory, []string{"kitchen", "s3cret"}); err != nil {
		t.Fatalf("pair: %v", err)
	}
	c, err := store.LoadCredential()
	if err != nil {
		t.Fatal(err)
	}
	if c.NameString() != "kitchen" || !c.IsPaired() {
		t.Fatalf("stored credential = %+v", c)
	}

	// a new connection starts a new handshake
	session.Reset()
	current, _ := pairing.NewCredential("kitchen", "s3cret", pairing.FlagPaired)
	if err := commands["send"].handler(context.Background(), link, current, []string{"0102ff"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sink.payloads) != 1 || !bytes.Equal(sink.payloads[0], []byte{0x01, 0x02, 0xff}) {
		t.Errorf("payloads = %x", sink.payloads)
	}
}

func TestSendRejectsBadHex(t *testing.T) {
	store, _, sink, link := newBulb(t)

	if err := commands["send"].handler(context.Background(), link, store.Factory(), []string{"zz"}); err == nil {
		t.Fatal("expected an error")
	}
	if len(sink.payloads) != 0 {
		t.Errorf("payloads = %x", sink.payloads)
	}
}

func TestCommandsDescribeArgs(t *testing.T) {
	for label, c := range commands {
		if c.help == "" || c.handler == nil {
			t.Errorf("%s: incomplete", label)
		}
		if got := len(strings.Fields(c.usage)); got != c.requiredArgs {
			t.Errorf("%s: usage %q names %d args, requires %d", label, c.usage, got, c.requiredArgs)
		}
	}
}
