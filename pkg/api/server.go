//nolint:revive // api is a standard package name for API servers
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/events"
	"github.com/jwoglom/fakebulb/pkg/handler"
)

// Controller is the part of the router exposed over HTTP
type Controller interface {
	Status() (handler.Status, error)
	FactoryReset() error
}

// Server provides an HTTP and WebSocket API for monitoring the bulb emulator
type Server struct {
	controller Controller
	router     chi.Router
	server     *http.Server

	mtx     sync.Mutex
	clients map[*client]struct{}
}

const (
	// clientQueueSize is the number of messages buffered per websocket client
	// before it is dropped as too slow
	clientQueueSize = 64
	writeWait       = 5 * time.Second
)

// client is one websocket connection. Only its writer goroutine writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// StatusMessage is sent to websocket clients on connect and on request
type StatusMessage struct {
	Type   string         `json:"type"`
	Status handler.Status `json:"status"`
}

// New creates a new API server
func New() *Server {
	s := &Server{
		router:  chi.NewRouter(),
		clients: make(map[*client]struct{}),
	}
	s.setupRoutes()
	return s
}

// SetController sets the router answering status and reset requests
func (s *Server) SetController(controller Controller) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.controller = controller
}

func (s *Server) getController() Controller {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.controller
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprint(w, "Bulb Emulator API - Connect via WebSocket at /ws\n\n"+
			"  GET    /api/status\n"+
			"  POST   /api/credential/reset\n"); err != nil {
			log.Warnf("Failed to write response: %v", err)
		}
	})
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/credential/reset", s.handleReset)
	})
	s.router.Get("/ws", s.handleWebSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves the API on addr until Shutdown is called
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.mtx.Lock()
	s.server = srv
	s.mtx.Unlock()

	log.Infof("Bulb emulator web API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.mtx.Lock()
	for c := range s.clients {
		s.dropLocked(c)
	}
	srv := s.server
	s.mtx.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := s.status()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.factoryReset(); err != nil {
		log.Errorf("Factory reset failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) status() (handler.Status, error) {
	c := s.getController()
	if c == nil {
		return handler.Status{}, errNoController
	}
	return c.Status()
}

func (s *Server) factoryReset() error {
	c := s.getController()
	if c == nil {
		return errNoController
	}
	return c.FactoryReset()
}

var errNoController = errors.New("api: no controller")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Infof("WebSocket connection from: %s", r.RemoteAddr)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: ws, send: make(chan []byte, clientQueueSize)}
	s.mtx.Lock()
	s.clients[c] = struct{}{}
	s.mtx.Unlock()

	go c.writer()
	s.sendStatus(c)
	s.reader(c)
}

// Publish queues an event for every websocket client. It never waits on the
// network; a client whose queue is full is disconnected.
func (s *Server) Publish(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to marshal event: %v", err)
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	for c := range s.clients {
		s.enqueueLocked(c, data)
	}
}

func (s *Server) enqueueLocked(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warnf("Dropping slow websocket client %s", c.conn.RemoteAddr())
		s.dropLocked(c)
	}
}

// dropLocked forgets c and closes its connection. s.mtx must be held.
func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	if err := c.conn.Close(); err != nil {
		log.Debugf("Error closing websocket: %v", err)
	}
}

func (s *Server) clientCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.clients)
}

func (c *client) writer() {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debugf("WebSocket write failed: %v", err)
			// the reader sees the closed connection and drops the client
			c.conn.Close()
			return
		}
	}
}

func (s *Server) sendStatus(c *client) {
	status, err := s.status()
	if err != nil {
		log.Warnf("Could not get status: %v", err)
		return
	}
	data, err := json.Marshal(StatusMessage{Type: "status", Status: status})
	if err != nil {
		log.Errorf("Failed to marshal status: %v", err)
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	s.enqueueLocked(c, data)
}

func (s *Server) reader(c *client) {
	defer func() {
		s.mtx.Lock()
		s.dropLocked(c)
		s.mtx.Unlock()
	}()

	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket read error: %v", err)
			return
		}
		log.Debugf("Received WebSocket message: %s", string(p))
		s.handleCommand(c, p)
	}
}

func (s *Server) handleCommand(c *client, data []byte) {
	var msg struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Errorf("Failed to parse command: %v", err)
		return
	}

	switch msg.Command {
	case "getStatus":
		s.sendStatus(c)
	case "factoryReset":
		if err := s.factoryReset(); err != nil {
			log.Errorf("Factory reset failed: %v", err)
		}
		s.sendStatus(c)
	default:
		log.Warnf("Unknown websocket command: %q", msg.Command)
	}
}
