package display

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	ChannelTimer  = "timer"
	ChannelStudy  = "study"
	ChannelNotify = "notify"
)

const (
	writeWait      = 2 * time.Second
	clientSendSize = 32
)

// Message is what websocket clients receive.
type Message struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	Title   string `json:"title,omitempty"`
}

// client is one websocket connection. Only its writer goroutine touches conn
// for writes; everything else queues on send.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub remembers the latest text per channel and fans every update out to
// connected websocket clients. Publishing never blocks: a client whose queue
// is full is dropped.
type Hub struct {
	mu          sync.RWMutex
	latest      map[string]string
	connections map[*client]struct{}
	upgrader    websocket.Upgrader
	origins     []string
}

// NewHub builds a hub that accepts websocket connections from the same host,
// from non-browser clients, and from the listed origins ("*" allows any).
func NewHub(origins ...string) *Hub {
	h := &Hub{
		latest:      make(map[string]string),
		connections: make(map[*client]struct{}),
		origins:     origins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Channel returns a Display that publishes on the named channel.
func (h *Hub) Channel(name string) Display {
	return Func(func(text string) {
		h.publish(Message{Channel: name, Text: text})
	})
}

// Latest returns the last text shown on a channel.
func (h *Hub) Latest(name string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if v, ok := h.latest[name]; ok {
		return v
	}
	return Format(0)
}

// Notify forwards notifications to display clients. It never fails.
func (h *Hub) Notify(title, body string) error {
	h.publish(Message{Channel: ChannelNotify, Title: title, Text: body})
	return nil
}

func (h *Hub) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	if msg.Channel != ChannelNotify {
		if h.latest[msg.Channel] == msg.Text {
			h.mu.Unlock()
			return
		}
		h.latest[msg.Channel] = msg.Text
	}
	var slow []*client
	for c := range h.connections {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Printf("WebSocket client too slow, dropping it")
		h.unregister(c)
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	c := h.register(conn)
	go h.writePump(c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) writePump(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WebSocket write failed, dropping client: %v", err)
			h.unregister(c)
			return
		}
	}
}

// register queues the current value of every channel before the client
// becomes visible to publish, so the snapshot always arrives first.
func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}

	h.mu.Lock()
	for ch, text := range h.latest {
		if data, err := json.Marshal(Message{Channel: ch, Text: text}); err == nil {
			c.send <- data
		}
	}
	h.connections[c] = struct{}{}
	total := len(h.connections)
	h.mu.Unlock()

	log.Printf("WebSocket connected (total: %d)", total)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c]; !ok {
		return
	}
	delete(h.connections, c)
	close(c.send)
	c.conn.Close()
	log.Printf("WebSocket disconnected (remaining: %d)", len(h.connections))
}

// Close drops every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.connections {
		delete(h.connections, c)
		close(c.send)
		c.conn.Close()
	}
}
