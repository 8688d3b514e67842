package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/curbz/cognition/internal/linkmodel"
	"github.com/curbz/cognition/internal/log"
)

// BusPath is where the mock bus accepts WebSocket connections.
const BusPath = "/bus"

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Server is a stand in for the vehicle bus. It records every message a
// client sends, can push messages to all clients and optionally answers
// path requests like a path planner would.
type Server struct {
	log *log.Logger

	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
	received  []linkmodel.Envelope
	connected chan struct{}
	once      sync.Once
	planner   func(linkmodel.PathRequest) linkmodel.PathResult

	wmu    sync.Mutex
	nextID int64

	messages chan linkmodel.Envelope
}

func New(lg *log.Logger) *Server {
	return &Server{
		log:       lg.With("component", "mockserver"),
		conns:     make(map[*websocket.Conn]struct{}),
		connected: make(chan struct{}),
		messages:  make(chan linkmodel.Envelope, 256),
	}
}

// Handler serves the bus; use it with httptest.NewServer in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(BusPath, s.wsHandler)
	return mux
}

// Start starts the mock bus on the given port (e.g. "8086").
// It returns the *http.Server so the caller can shut it down when desired.
func (s *Server) Start(port string) *http.Server {
	srv := &http.Server{Addr: ":" + port, Handler: s.Handler()}
	go func() {
		s.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("ListenAndServe error", "error", err)
		}
	}()
	return srv
}

// SetPlanner makes the server answer path requests with fn's result.
func (s *Server) SetPlanner(fn func(linkmodel.PathRequest) linkmodel.PathResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planner = fn
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.once.Do(func() { close(s.connected) })

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("read error", "error", err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var env linkmodel.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.log.Warn("invalid JSON", "error", err)
			continue
		}
		s.record(env)

		switch env.Type {
		case linkmodel.TypePathRequest:
			s.answerPathRequest(env)
		case linkmodel.TypeResult, linkmodel.TypeError:
		default:
			// acknowledge like the real bus does
			s.write(conn, linkmodel.Envelope{RequestID: env.RequestID, Type: linkmodel.TypeResult, Success: true})
		}
	}
}

func (s *Server) record(env linkmodel.Envelope) {
	s.mu.Lock()
	s.received = append(s.received, env)
	s.mu.Unlock()
	select {
	case s.messages <- env:
	default:
		s.log.Warn("message channel full, dropping", "type", env.Type)
	}
}

func (s *Server) answerPathRequest(env linkmodel.Envelope) {
	s.mu.Lock()
	planner := s.planner
	s.mu.Unlock()
	if planner == nil {
		return
	}
	var req linkmodel.PathRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.log.Warn("bad path request", "error", err)
		return
	}
	if err := s.Broadcast(linkmodel.TypePathResult, planner(req)); err != nil {
		s.log.Warn("path result not sent", "error", err)
	}
}

// Broadcast sends a message to every connected client.
func (s *Server) Broadcast(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	s.wmu.Lock()
	s.nextID++
	env := linkmodel.Envelope{RequestID: s.nextID, Type: msgType, Payload: raw}
	s.wmu.Unlock()

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if len(conns) == 0 {
		return fmt.Errorf("broadcast %s: no clients", msgType)
	}
	for _, c := range conns {
		if err := s.write(c, env); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) write(c *websocket.Conn, env linkmodel.Envelope) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return c.WriteJSON(env)
}

// WaitConnected blocks until the first client connects.
func (s *Server) WaitConnected(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next message received from a client.
func (s *Server) Next(ctx context.Context) (linkmodel.Envelope, error) {
	select {
	case env := <-s.messages:
		return env, nil
	case <-ctx.Done():
		return linkmodel.Envelope{}, ctx.Err()
	}
}

// NextOfType skips messages until one of the given type arrives.
func (s *Server) NextOfType(ctx context.Context, msgType string) (linkmodel.Envelope, error) {
	for {
		env, err := s.Next(ctx)
		if err != nil {
			return env, err
		}
		if env.Type == msgType {
			return env, nil
		}
	}
}

// Received returns every message received so far.
func (s *Server) Received() []linkmodel.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]linkmodel.Envelope(nil), s.received...)
}
