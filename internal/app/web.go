package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/status"
	"github.com/relabs-tech/mpu_datalogger/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsWriteWait = 10 * time.Second
	wsSendQueue = 16
)

// StatusSource yields the last rendered status event.
type StatusSource interface {
	Last() (status.Event, bool)
}

// WebServer serves the status API and the websocket console. It is also a
// status.Sink so every render is pushed to connected clients.
type WebServer struct {
	src  StatusSource
	feed func(byte) bool

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan status.Event
	wmu  sync.Mutex // serialises writes on conn
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

// wsReply acknowledges or rejects a command.
type wsReply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// NewWebServer returns a server reading status from src and feeding command
// characters to feed.
func NewWebServer(src StatusSource, feed func(byte) bool) *WebServer {
	return &WebServer{src: src, feed: feed, clients: make(map[*wsClient]struct{})}
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves on port until ctx ends.
func (s *WebServer) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

func (s *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.src.Last()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ev); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// PublishStatus queues ev for every connected client. Slow clients lose
// events rather than stall the dispatcher.
func (s *WebServer) PublishStatus(ev status.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			log.Debugf("web: client queue full, event dropped")
		}
	}
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan status.Event, wsSendQueue)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	if ev, ok := s.src.Last(); ok {
		select {
		case c.send <- ev:
		default:
		}
	}

	done := make(chan struct{})
	go s.writePump(c, done)
	s.readPump(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(done)
	conn.Close()
}

// readPump turns client messages into command characters.
func (s *WebServer) readPump(c *wsClient) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}
		ch, ok := telemetry.CommandChar(msg)
		reply := wsReply{Type: "accepted"}
		switch {
		case !ok:
			reply = wsReply{Type: "error", Message: "expected {\"cmd\":\"<a-h>\"}"}
		case !s.feed(ch):
			reply = wsReply{Type: "error", Message: "command stream full"}
		}
		if err := c.writeJSON(reply); err != nil {
			return
		}
	}
}

// writePump is the only writer of status events to c.
func (s *WebServer) writePump(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-c.send:
			if err := c.writeJSON(ev); err != nil {
				return
			}
		}
	}
}
