package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/service/metrics"
	xlogger "CapFlow/pkg/logger"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientBuffer   = 16
)

// TapeMessage is pushed to websocket subscribers after every refresh.
type TapeMessage struct {
	Type      string            `json:"type"`
	Items     []models.TapeItem `json:"items"`
	Timestamp time.Time         `json:"timestamp"`
}

type tapeClient struct {
	hub  *TapeHub
	conn *websocket.Conn
	send chan *TapeMessage
}

// TapeHub fans the latest flow tape out to websocket clients.
// Slow clients are dropped instead of blocking the hub.
type TapeHub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	register   chan *tapeClient
	unregister chan *tapeClient
	broadcast  chan *TapeMessage
	done       chan struct{}

	clients map[*tapeClient]struct{}

	mu     sync.RWMutex
	latest *TapeMessage
}

func NewTapeHub(logger *xlogger.Logger) *TapeHub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	metrics.Register()
	return &TapeHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *tapeClient),
		unregister: make(chan *tapeClient),
		broadcast:  make(chan *TapeMessage, 8),
		done:       make(chan struct{}),
		clients:    make(map[*tapeClient]struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *TapeHub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		metrics.TapeSubscribers.Set(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.TapeSubscribers.Set(float64(len(h.clients)))
			if msg := h.Latest(); msg != nil {
				c.send <- msg
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.TapeSubscribers.Set(float64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping slow tape subscriber", xlogger.String("remote", c.conn.RemoteAddr().String()))
					delete(h.clients, c)
					close(c.send)
				}
			}
			metrics.TapeSubscribers.Set(float64(len(h.clients)))
		}
	}
}

// Broadcast stores items as the latest tape and queues them for subscribers.
// It never blocks the caller; if the hub is backed up the message is only kept as latest.
func (h *TapeHub) Broadcast(items []models.TapeItem) {
	if items == nil {
		items = []models.TapeItem{}
	}
	msg := &TapeMessage{Type: "tape", Items: items, Timestamp: time.Now().UTC()}

	h.mu.Lock()
	h.latest = msg
	h.mu.Unlock()

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("tape broadcast queue full")
	}
}

// Latest returns the last broadcast tape, or nil.
func (h *TapeHub) Latest() *TapeMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// ServeWS upgrades GET /ws/tape.
func (h *TapeHub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	client := &tapeClient{hub: h, conn: conn, send: make(chan *TapeMessage, clientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump only services control frames; clients do not send commands.
func (c *tapeClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("tape websocket closed", xlogger.Error(err))
			}
			return
		}
	}
}

func (c *tapeClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("tape websocket write failed", xlogger.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
