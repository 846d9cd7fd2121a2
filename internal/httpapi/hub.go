package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"shiftboard/store"
)

const broadcastTimeout = 5 * time.Second

// Hub fans remote change events out to connected websocket clients. The
// browser treats every event as a hint to reload the affected collection, so
// dropping a slow client is safe.
type Hub struct {
	logger *logrus.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub builds an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast sends the event to every connected client. Clients that cannot
// be written to within the timeout are dropped.
func (h *Hub) Broadcast(event store.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode change event")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		err := conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.drop(conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if present {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// handleWebsocket upgrades the request and parks the connection in the hub.
// Clients only listen; the read loop exists to notice disconnects.
func (s *Server) handleWebsocket(c *gin.Context) {
	acceptOpts := &websocket.AcceptOptions{OriginPatterns: s.origins}
	if len(s.origins) == 0 {
		acceptOpts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(c.Writer, c.Request, acceptOpts)
	if err != nil {
		s.logger.WithError(err).Warn("websocket accept failed")
		return
	}

	s.hub.add(conn)
	defer s.hub.drop(conn)

	ctx := c.Request.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
