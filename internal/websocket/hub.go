package websocket

import (
	"context"
	"encoding/json"

	"github.com/daffadevhosting/paypal-workers/pkg/contracts"
)

// StatusUpdate is the frame pushed to subscribed clients.
type StatusUpdate struct {
	ResourceType contracts.ResourceType `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	ProviderID   string                 `json:"provider_id,omitempty"`
	Status       string                 `json:"status"`
}

func updateFrom(evt contracts.StatusChangedEvent) StatusUpdate {
	return StatusUpdate{
		ResourceType: evt.ResourceType,
		ResourceID:   evt.ResourceID,
		ProviderID:   evt.ProviderID,
		Status:       evt.Status,
	}
}

type Client struct {
	hub  *Hub
	conn *Conn
	send chan []byte
	// key is the local or provider id the client subscribed with.
	key string
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan StatusUpdate
	done       chan struct{}
	clients    map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan StatusUpdate),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.key]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.key] = set
			}
			set[c] = true
		case c := <-h.unregister:
			h.remove(c)
		case upd := <-h.broadcast:
			msg, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			h.deliver(upd.ResourceID, msg)
			if upd.ProviderID != "" && upd.ProviderID != upd.ResourceID {
				h.deliver(upd.ProviderID, msg)
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return
		}
	}
}

func (h *Hub) deliver(key string, msg []byte) {
	for c := range h.clients[key] {
		select {
		case c.send <- msg:
		default:
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.key]
	if !ok {
		return
	}
	if _, exists := set[c]; exists {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.key)
	}
}

// Publish fans a status change out to clients watching either its local or
// its provider id. It never blocks the caller.
func (h *Hub) Publish(evt contracts.StatusChangedEvent) {
	upd := updateFrom(evt)
	go func() {
		select {
		case h.broadcast <- upd:
		case <-h.done:
		}
	}()
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
