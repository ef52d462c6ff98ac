// ws.go
package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// statusFeed pushes JSON events to every connected WebSocket client. Publishing
// never blocks: when the queue is full the event is dropped.
type statusFeed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	queue   chan []byte
	done    chan struct{}

	upgrader websocket.Upgrader
}

func newStatusFeed() *statusFeed {
	return &statusFeed{
		clients: map[*websocket.Conn]bool{},
		queue:   make(chan []byte, 100),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and keeps it until the client goes away.
func (f *statusFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("[WS] upgrade: %v", err)
		return
	}

	f.mu.Lock()
	f.clients[c] = true
	f.mu.Unlock()
	log.Debugf("[WS] client connected: %s", r.RemoteAddr)

	// Drain client frames so close and ping control messages are processed.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				f.remove(c)
				return
			}
		}
	}()
}

func (f *statusFeed) remove(c *websocket.Conn) {
	f.mu.Lock()
	if f.clients[c] {
		delete(f.clients, c)
		c.Close()
	}
	f.mu.Unlock()
}

// publish queues v for every client. A nil feed discards it.
func (f *statusFeed) publish(v interface{}) {
	if f == nil {
		return
	}

	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[WS] marshal: %v", err)
		return
	}

	select {
	case f.queue <- b:
	default:
	}
}

// run writes queued events to all clients until stop is called.
func (f *statusFeed) run() {
	for {
		select {
		case <-f.done:
			f.mu.Lock()
			for c := range f.clients {
				delete(f.clients, c)
				c.Close()
			}
			f.mu.Unlock()
			log.Debug("[WS] status feed stopped")
			return
		case msg := <-f.queue:
			f.mu.Lock()
			for c := range f.clients {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					delete(f.clients, c)
					c.Close()
				}
			}
			f.mu.Unlock()
		}
	}
}

func (f *statusFeed) stop() {
	close(f.done)
}

func (f *statusFeed) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
