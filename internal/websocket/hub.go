package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jogardn/office-meals/internal/notifier"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	queueSize = 256
)

var (
	ErrHubFull    = errors.New("websocket broadcast queue full")
	ErrHubStopped = errors.New("websocket hub stopped")
)

var upgrader = websocket.Upgrader{
	// Browser tabs are served from another origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is what browser tabs receive.
type Envelope struct {
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type tab struct {
	conn  *websocket.Conn
	queue chan []byte
}

// Hub pushes notifications and snapshots to connected browser tabs. Tabs
// that fall behind are dropped rather than slowing the pollers down.
type Hub struct {
	source string
	logger *logrus.Logger

	outbox chan Envelope
	done   chan struct{}

	mutex sync.RWMutex
	tabs  map[*tab]struct{}
	open  bool
}

func NewHub(source string, logger *logrus.Logger) *Hub {
	return &Hub{
		source: source,
		logger: logger,
		outbox: make(chan Envelope, queueSize),
		done:   make(chan struct{}),
		tabs:   make(map[*tab]struct{}),
		open:   true,
	}
}

// Run fans queued envelopes out to every tab until ctx is done, then closes
// all tabs.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			h.open = false
			for t := range h.tabs {
				h.drop(t)
			}
			h.mutex.Unlock()
			return

		case env := <-h.outbox:
			data, err := json.Marshal(env)
			if err != nil {
				h.logger.WithError(err).WithField("type", env.Type).Error("Failed to encode envelope")
				continue
			}
			h.fanOut(data)
		}
	}
}

func (h *Hub) fanOut(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for t := range h.tabs {
		select {
		case t.queue <- data:
		default:
			h.logger.WithField("remote", t.conn.RemoteAddr().String()).Warn("Dropping slow browser tab")
			h.drop(t)
		}
	}
}

// drop must be called with the mutex held.
func (h *Hub) drop(t *tab) {
	if _, ok := h.tabs[t]; !ok {
		return
	}
	delete(h.tabs, t)
	close(t.queue)
}

// Broadcast queues data for every tab. It never blocks.
func (h *Hub) Broadcast(messageType string, data interface{}) error {
	env := Envelope{
		Type:      messageType,
		Source:    h.source,
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      data,
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.outbox <- env:
		return nil
	default:
		return ErrHubFull
	}
}

// Notify implements notifier.Sink.
func (h *Hub) Notify(ctx context.Context, n notifier.Notification) error {
	return h.Broadcast("notification", n)
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	t := &tab{conn: conn, queue: make(chan []byte, queueSize)}

	h.mutex.Lock()
	if !h.open {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.tabs[t] = struct{}{}
	count := len(h.tabs)
	h.mutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"remote":    r.RemoteAddr,
		"tab_count": count,
	}).Info("Browser tab connected")

	go h.write(t)
	go h.read(t)
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.tabs)
}

// read only watches for the tab going away; tabs never send anything.
func (h *Hub) read(t *tab) {
	defer func() {
		h.mutex.Lock()
		h.drop(t)
		count := len(h.tabs)
		h.mutex.Unlock()
		t.conn.Close()
		h.logger.WithField("tab_count", count).Info("Browser tab disconnected")
	}()

	t.conn.SetReadLimit(512)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("Browser tab closed unexpectedly")
			}
			return
		}
	}
}

func (h *Hub) write(t *tab) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case data, ok := <-t.queue:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				t.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
