// Package websocket pushes alert events to connected dashboard clients.
package websocket

import (
	"context"

	"github.com/goccy/go-json"

	"kora/internal/logging"
	"kora/internal/metrics"
)

// Hub maintains the set of active dashboard clients and broadcasts alert
// payloads to them. Broadcast never blocks the sender: a full hub queue or a
// slow client drops the message for that client instead of stalling the
// pipeline.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is canceled. All remaining clients are
// closed on shutdown, and done is closed so in-flight handlers stop waiting
// on the register/unregister channels.
func (h *Hub) Run(ctx context.Context) {
	log := logging.Component("websocket")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Debug().Int("clients", len(h.clients)).Msg("dashboard client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Debug().Int("clients", len(h.clients)).Msg("dashboard client disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; cut it loose rather than block.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// BroadcastJSON marshals v and queues it for all clients. Returns false when
// the hub queue is full and the message was dropped.
func (h *Hub) BroadcastJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		log := logging.Component("websocket")
		log.Error().Err(err).Msg("marshal broadcast payload")
		return false
	}
	select {
	case h.broadcast <- payload:
		return true
	default:
		metrics.AlertsDropped.Inc()
		return false
	}
}
