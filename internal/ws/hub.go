package ws

import (
	"encoding/json"
	"log"
)

// Hub fans server events out to every connected client. Clients hold no
// authoritative state: a dataset-changed broadcast tells them to re-fetch.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("[WS] Client connected (%d total)", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("[WS] Client disconnected (%d total)", len(h.clients))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
					log.Printf("[WS] Dropped slow client (%d total)", len(h.clients))
				}
			}
		}
	}
}

// Broadcast sends an event to every connected client, the originator of a
// change included.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	env := Envelope{Type: eventType}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("[WS] Failed to marshal %s broadcast: %v", eventType, err)
			return
		}
		env.Data = payload
	}
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s envelope: %v", eventType, err)
		return
	}
	h.broadcast <- frame
}

// NotifyDatasetChanged broadcasts the payload-free invalidation signal.
// Observers must re-fetch listings; the signal never carries a diff.
func (h *Hub) NotifyDatasetChanged(project string) {
	log.Printf("[WS] Dataset changed for project %s", project)
	h.Broadcast(EvtDatasetChanged, nil)
}
