// Package notify delivers loop_discovered / loop_invalidated events to
// observers. The in-process Observer interface lets
// the engine fire events synchronously; Hub adapts the same events onto a
// gorilla/websocket connection fan-out for remote subscribers.
package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Observer receives discovery events in-process.
type Observer interface {
	OnLoopDiscovered(models.LoopDiscoveredEvent)
	OnLoopInvalidated(models.LoopInvalidatedEvent)
}

// ObserverFuncs adapts plain functions to Observer; either may be nil.
type ObserverFuncs struct {
	Discovered  func(models.LoopDiscoveredEvent)
	Invalidated func(models.LoopInvalidatedEvent)
}

func (f ObserverFuncs) OnLoopDiscovered(e models.LoopDiscoveredEvent) {
	if f.Discovered != nil {
		f.Discovered(e)
	}
}

func (f ObserverFuncs) OnLoopInvalidated(e models.LoopInvalidatedEvent) {
	if f.Invalidated != nil {
		f.Invalidated(e)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // demonstration shell only, not part of the core contract
	},
}

// Hub fans discovery events out to subscribed websocket clients. It
// implements Observer so the engine can register it like any other
// subscriber.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until it is closed; call it in its own
// goroutine.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Notify] websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an HTTP request to a websocket client registered to
// receive every future broadcast.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Notify] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
	log.Printf("[Notify] new subscriber connected, total=%d", len(h.clients))

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Notify] subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) OnLoopDiscovered(e models.LoopDiscoveredEvent) {
	h.broadcastJSON("loop_discovered", e)
}

func (h *Hub) OnLoopInvalidated(e models.LoopInvalidatedEvent) {
	h.broadcastJSON("loop_invalidated", e)
}

func (h *Hub) broadcastJSON(eventType string, payload any) {
	envelope := struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: payload}

	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Notify] failed to marshal event %s: %v", eventType, err)
		return
	}
	h.broadcast <- data
}

// Registry dispatches events to every registered Observer synchronously, in
// registration order. The engine owns one Registry and treats it as its
// single fan-out point.
type Registry struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) FireDiscovered(e models.LoopDiscoveredEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.observers {
		o.OnLoopDiscovered(e)
	}
}

func (r *Registry) FireInvalidated(e models.LoopInvalidatedEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.observers {
		o.OnLoopInvalidated(e)
	}
}
