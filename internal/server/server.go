// Package server bridges the browser extension to the window model over a
// local WebSocket. The extension pushes resource events and answers the
// commands it is sent.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/types"
	"nhooyr.io/websocket"
)

const (
	readLimit    = 16 << 20 // a full snapshot of every window
	writeTimeout = 5 * time.Second
	queueSize    = 64
)

// IncomingMsg is either a resource event or the reply to a command.
type IncomingMsg struct {
	Type    string          `json:"type"`
	Tab     json.RawMessage `json:"tab,omitempty"`
	Tabs    json.RawMessage `json:"tabs,omitempty"`
	Window  json.RawMessage `json:"window,omitempty"`
	Windows json.RawMessage `json:"windows,omitempty"`

	TabID           types.ExternalID `json:"tabId,omitempty"`
	WindowID        types.ExternalID `json:"windowId,omitempty"`
	Index           int              `json:"index,omitempty"`
	IsWindowClosing bool             `json:"isWindowClosing,omitempty"`

	// Reply fields
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsReply reports whether the message answers a command.
func (m IncomingMsg) IsReply() bool { return m.OK != nil }

// Failed reports whether the message is a negative reply.
func (m IncomingMsg) Failed() bool { return m.OK != nil && !*m.OK }

// TabToOpen is one tab of an open-window command.
type TabToOpen struct {
	URL    string `json:"url"`
	Pinned bool   `json:"pinned,omitempty"`
}

// OutgoingMsg is a command to the extension. ID is echoed in the reply.
type OutgoingMsg struct {
	ID       string             `json:"id"`
	Action   string             `json:"action"`
	WindowID types.ExternalID   `json:"windowId,omitempty"`
	TabIDs   []types.ExternalID `json:"tabIds,omitempty"`
	Tabs     []TabToOpen        `json:"tabs,omitempty"`
}

// ErrNotConnected is returned by Send when no extension is connected.
var ErrNotConnected = errors.New("extension not connected")

// Server holds at most one extension connection. A new connection replaces
// the old one; the extension then resends its snapshot.
type Server struct {
	port int
	msgs chan IncomingMsg

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
}

// New creates a Server for port. Port 0 means the caller mounts Handler on
// its own listener.
func New(port int) *Server {
	return &Server{
		port: port,
		msgs: make(chan IncomingMsg, queueSize),
	}
}

func (s *Server) Port() int { return s.port }

// Messages delivers extension messages in arrival order.
func (s *Server) Messages() <-chan IncomingMsg { return s.msgs }

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes a command to the connected extension.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn, connCtx := s.conn, s.connCtx
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Action, err)
	}
	ctx, cancel := context.WithTimeout(connCtx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Action, err)
	}
	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	return nil
}

func (s *Server) attach(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		applog.Info("ws.replaced")
		s.conn.CloseNow()
	}
	s.conn, s.connCtx = conn, ctx
}

func (s *Server) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn, s.connCtx = nil, nil
	}
	s.mu.Unlock()
	conn.CloseNow()
	applog.Info("ws.disconnected")
}

// readLoop queues every message from conn. A full queue blocks the reader
// instead of dropping: a lost tab event would leave the model out of step
// with the browser.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg IncomingMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			applog.Error("ws.parse", err)
			continue
		}
		applog.Info("ws.recv", "type", msg.Type, "id", msg.ID)
		select {
		case s.msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Handler accepts the extension's WebSocket upgrade.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Extension pages have moz-extension:// origins.
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}
		conn.SetReadLimit(readLimit)

		ctx := r.Context()
		s.attach(ctx, conn)
		applog.Info("ws.connected", "remote", r.RemoteAddr)
		defer s.detach(conn)

		s.readLoop(ctx, conn)
	})
}

// ListenAndServe serves Handler on 127.0.0.1 until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	applog.Info("server.start", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
