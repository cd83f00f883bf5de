// Package sse streams assessment progress events to connected clients.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// defaultWriteTimeout bounds writes to a single client so one stale
// connection never blocks a broadcast.
const defaultWriteTimeout = 2 * time.Second

// client is one connected event-stream subscriber.
type client struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// Broadcaster fans assessment events out to all connected SSE clients.
type Broadcaster struct {
	mu           sync.RWMutex
	clients      map[string]*client
	nextID       int
	writeTimeout time.Duration
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:      make(map[string]*client),
		writeTimeout: defaultWriteTimeout,
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends one event to every connected client. Writes run
// concurrently with individual timeouts; clients that fail or stall are
// dropped.
func (b *Broadcaster) Broadcast(data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}
	message := fmt.Sprintf("data: %s\n\n", payload)

	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	deadCh := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if !b.writeTo(c, message) {
				deadCh <- c.id
			}
		}(c)
	}
	wg.Wait()
	close(deadCh)

	for id := range deadCh {
		b.drop(id)
	}
}

// writeTo writes one message to a client and reports whether the client
// is still healthy. The write runs in its own goroutine reporting into a
// buffered channel, so a write that completes after the timeout elapsed
// never touches broadcast state.
func (b *Broadcaster) writeTo(c *client, message string) bool {
	written := make(chan error, 1)
	go func() {
		_, err := c.writer.Write([]byte(message))
		if err == nil {
			c.flusher.Flush()
		}
		written <- err
	}()

	select {
	case err := <-written:
		return err == nil
	case <-time.After(b.writeTimeout):
		log.Warn().Str("clientId", c.id).Msg("SSE write timed out, dropping client")
		return false
	case <-c.done:
		return true
	}
}

// add registers a new client.
func (b *Broadcaster) add(w http.ResponseWriter, flusher http.Flusher) *client {
	b.mu.Lock()
	b.nextID++
	c := &client{
		id:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", c.id).Int("totalClients", total).Msg("SSE client connected")
	return c
}

// drop removes a client by id and closes its done channel once.
func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	remaining := len(b.clients)
	b.mu.Unlock()

	if exists {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	log.Debug().Str("clientId", id).Int("totalClients", remaining).Msg("SSE client removed")
}

// ServeHTTP handles an SSE subscription and blocks until the client
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := b.add(w, flusher)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":%q}\n\n", c.id)
	flusher.Flush()

	select {
	case <-r.Context().Done():
	case <-c.done:
	}
	b.drop(c.id)
}
