package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"soundry/types"
)

// TopicAll receives every event regardless of job
const TopicAll = "all"

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run(ctx context.Context)
	Broadcast(event types.Event)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and broadcasts events to them
type hub struct {
	// Registered clients mapped by topic (a job ID or TopicAll)
	clients map[string]map[*Client]bool

	broadcast  chan types.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.Mutex
}

// NewHub creates a new WebSocket hub
func NewHub() Hub {
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.Event, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop and returns when ctx is cancelled
func (h *hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for topic, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, topic)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.topic] == nil {
				h.clients[client.topic] = make(map[*Client]bool)
			}
			h.clients[client.topic][client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected for %s", client.topic)

		case client := <-h.unregister:
			h.remove(client)
			log.Printf("WebSocket client disconnected for %s", client.topic)

		case event := <-h.broadcast:
			h.deliver(event.JobID, event)
			h.deliver(TopicAll, event)
		}
	}
}

func (h *hub) deliver(topic string, event types.Event) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- event:
		default:
			// slow consumer
			close(client.send)
			delete(clients, client)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

func (h *hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.topic]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.clients, client.topic)
			}
		}
	}
}

// Broadcast queues an event for delivery without blocking the caller
func (h *hub) Broadcast(event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		log.Printf("WebSocket broadcast channel full, dropping %s event", event.Type)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
