package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Notification is a listener event pushed to every connected host.
type Notification struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Server serves the command surface over websockets. Each connection may
// send Requests and receives Responses plus every listener Notification.
type Server struct {
	// Dependencies (injected)
	logger     *slog.Logger
	dispatcher *Dispatcher
	bus        ports.EventBus

	upgrader websocket.Upgrader
	subID    domain.SubscriptionID

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewServer creates a server and subscribes it to listener events.
func NewServer(logger *slog.Logger, dispatcher *Dispatcher, bus ports.EventBus) *Server {
	s := &Server{
		logger:     logger.With(slog.String("component", "bridge")),
		dispatcher: dispatcher,
		bus:        bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Hosts are local apps, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.subID = bus.SubscribeListeners(s.broadcast)
	return s
}

// ServeHTTP upgrades the connection and serves it until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, sendQueueSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Info("client connected", slog.String("client_id", c.id), slog.String("remote", r.RemoteAddr))

	go s.writePump(c)
	go s.readPump(r.Context(), c)
}

// Clients returns the number of connected hosts.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) readPump(ctx context.Context, c *client) {
	defer s.wg.Done()
	defer s.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The request context ends with the handler; commands get their own.
	ctx = context.WithoutCancel(ctx)

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read failed", slog.String("client_id", c.id), slog.Any("error", err))
			}
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		resp := s.dispatcher.Handle(ctx, req)
		select {
		case c.send <- resp:
		case <-c.done:
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Debug("write failed", slog.String("client_id", c.id), slog.Any("error", err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drop unregisters c and stops its writer.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.close()
	// Unblock a reader waiting on a dead writer.
	_ = c.conn.SetReadDeadline(time.Now())
	if ok {
		s.logger.Info("client disconnected", slog.String("client_id", c.id))
	}
}

// broadcast queues a notification for every client. Slow clients lose
// notifications rather than stall the publisher.
func (s *Server) broadcast(e domain.ListenerEvent) {
	n := Notification{Event: e.ListenerName(), Data: e.Payload()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- n:
		default:
			s.logger.Debug("notification dropped",
				slog.String("client_id", c.id),
				slog.String("event", n.Event))
		}
	}
}

// Close unsubscribes from the bus, disconnects every client and waits for
// their goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("bridge server already closed")
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.bus.Unsubscribe(s.subID)
	for _, c := range clients {
		s.drop(c)
	}
	s.wg.Wait()
	return nil
}
