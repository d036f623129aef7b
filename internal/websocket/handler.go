package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	gw "github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusSource resolves the current status of an order or subscription by
// local or provider id. It returns nil when nothing matches.
type StatusSource interface {
	CurrentStatus(ctx context.Context, id string) (*contracts.StatusChangedEvent, error)
}

type Handler struct {
	hub    *Hub
	source StatusSource
	logger *slog.Logger
}

func NewHandler(hub *Hub, source StatusSource, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, source: source, logger: logger}
}

// ServeWS streams status changes for {resourceID}, starting with the current
// status.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("resourceID")
	current, err := h.source.CurrentStatus(r.Context(), resourceID)
	if err != nil {
		h.logger.Error("load status snapshot", "resource_id", resourceID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if current == nil {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
		key:  resourceID,
	}
	if b, err := json.Marshal(updateFrom(*current)); err == nil {
		client.send <- b
	}

	if !h.hub.join(client) {
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
