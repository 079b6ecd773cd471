package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwoglom/fakebulb/pkg/events"
	"github.com/jwoglom/fakebulb/pkg/handler"
)

type fakeController struct {
	mtx      sync.Mutex
	status   handler.Status
	err      error
	resetErr error
	resets   int
}

func (f *fakeController) Status() (handler.Status, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.status, f.err
}

func (f *fakeController) FactoryReset() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.resets++
	if f.resetErr == nil {
		f.status.MeshName = "telink_m"
		f.status.Paired = false
	}
	return f.resetErr
}

func (f *fakeController) resetCount() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.resets
}

func newTestServer(t *testing.T, c *fakeController) (*Server, *httptest.Server) {
	s := New()
	s.SetController(c)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestStatusEndpoint(t *testing.T) {
	c := &fakeController{status: handler.Status{MeshName: "kitchen", Paired: true, PairingState: "INIT"}}
	_, ts := newTestServer(t, c)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	var got handler.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.MeshName != "kitchen" || !got.Paired {
		t.Errorf("status = %+v", got)
	}
}

func TestStatusEndpointUnavailable(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{err: errors.New("stopped")})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d", resp.StatusCode)
	}
}

func TestResetEndpoint(t *testing.T) {
	c := &fakeController{status: handler.Status{MeshName: "kitchen", Paired: true}}
	_, ts := newTestServer(t, c)

	resp, err := http.Post(ts.URL+"/api/credential/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || c.resetCount() != 1 {
		t.Errorf("status code = %d, resets = %d", resp.StatusCode, c.resetCount())
	}

	// GET is not routed.
	resp, err = http.Get(ts.URL + "/api/credential/reset")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status code = %d", resp.StatusCode)
	}

	c.mtx.Lock()
	c.resetErr = errors.New("keyring locked")
	c.mtx.Unlock()
	resp, err = http.Post(ts.URL+"/api/credential/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failing reset status code = %d", resp.StatusCode)
	}
}

func TestNoController(t *testing.T) {
	ts := httptest.NewServer(New())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d", resp.StatusCode)
	}
}

func TestIndex(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "/api/status") {
		t.Errorf("index = %q", body)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) StatusMessage {
	var msg StatusMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "status" {
		t.Fatalf("message type = %q", msg.Type)
	}
	return msg
}

func TestWebSocketStream(t *testing.T) {
	c := &fakeController{status: handler.Status{MeshName: "kitchen", Connected: true}}
	s, ts := newTestServer(t, c)
	conn := dial(t, ts)

	if msg := readStatus(t, conn); msg.Status.MeshName != "kitchen" {
		t.Errorf("initial status = %+v", msg.Status)
	}

	e := events.New(events.TypeOTA)
	e.OTAState = "STARTED"
	s.Publish(e)

	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != events.TypeOTA || got.OTAState != "STARTED" {
		t.Errorf("event = %+v", got)
	}
}

func TestWebSocketCommands(t *testing.T) {
	c := &fakeController{status: handler.Status{MeshName: "kitchen", Paired: true}}
	_, ts := newTestServer(t, c)
	conn := dial(t, ts)
	readStatus(t, conn)

	if err := conn.WriteJSON(map[string]string{"command": "getStatus"}); err != nil {
		t.Fatal(err)
	}
	readStatus(t, conn)

	if err := conn.WriteJSON(map[string]string{"command": "factoryReset"}); err != nil {
		t.Fatal(err)
	}
	if msg := readStatus(t, conn); msg.Status.MeshName != "telink_m" || msg.Status.Paired {
		t.Errorf("status after reset = %+v", msg.Status)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishDoesNotWaitForStalledClient(t *testing.T) {
	c := &fakeController{status: handler.Status{MeshName: "kitchen"}}
	s, ts := newTestServer(t, c)
	dial(t, ts)
	waitFor(t, "client registration", func() bool { return s.clientCount() == 1 })

	e := events.New(events.TypeWrite)
	e.Data = strings.Repeat("ab", 32<<10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			s.Publish(e)
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked on a client that never reads")
	}

	waitFor(t, "slow client to be dropped", func() bool { return s.clientCount() == 0 })

	conn := dial(t, ts)
	readStatus(t, conn)
	s.Publish(events.New(events.TypeReboot))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != events.TypeReboot {
		t.Errorf("event = %+v", got)
	}
}
