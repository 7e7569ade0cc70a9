// Package sse implements a Server-Sent Events broker for real-time tree
// change notifications.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/lazytree/internal/broadcast"
)

// Event types published by the server.
const (
	TypeNodeCreated  = "node.created"
	TypeNodeUpdated  = "node.updated"
	TypeNodeDeleted  = "node.deleted"
	TypeTreeChanged  = "tree.changed"
	TypeTreeReloaded = "tree.reloaded"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NodeEvent is the payload of node.* events.
type NodeEvent struct {
	ID       int64 `json:"id"`
	ParentID int64 `json:"parent"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Fan-out runs on a broadcast.Hub loop; encoded frames are dropped for clients
// whose buffer is full. tree.changed is throttled so that bursts of node events
// produce a single reload hint.
type Broker struct {
	hub       *broadcast.Hub[[]byte]
	changeMin time.Duration
	lastTree  atomic.Int64
}

// NewBroker creates a new SSE broker with the given tree.changed throttle interval.
func NewBroker(changeThrottle time.Duration) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}
	return &Broker{
		hub:       broadcast.New[[]byte](broadcast.WithBuffer(64)),
		changeMin: changeThrottle,
	}
}

// Close stops the broker and closes all client channels.
func (b *Broker) Close() {
	b.hub.Close()
}

// Subscribe adds a new client and returns its channel of encoded frames.
func (b *Broker) Subscribe() <-chan []byte {
	return b.hub.Subscribe()
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch <-chan []byte) {
	b.hub.Unsubscribe(ch)
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return b.hub.SubscriberCount()
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	b.hub.Publish([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)))
}

// PublishNodeEvent publishes a node change and a throttled tree.changed event.
// kind is one of "created", "updated", "deleted".
func (b *Broker) PublishNodeEvent(kind string, id, parentID int64) {
	data := NodeEvent{ID: id, ParentID: parentID}
	switch kind {
	case "created":
		b.Publish(Event{Type: TypeNodeCreated, Data: data})
	case "updated":
		b.Publish(Event{Type: TypeNodeUpdated, Data: data})
	case "deleted":
		b.Publish(Event{Type: TypeNodeDeleted, Data: data})
	default:
		return
	}

	now := time.Now().UnixNano()
	last := b.lastTree.Load()
	if now-last >= int64(b.changeMin) && b.lastTree.CompareAndSwap(last, now) {
		b.Publish(Event{Type: TypeTreeChanged, Data: map[string]string{}})
	}
}

// PublishReload announces that the whole tree was replaced.
func (b *Broker) PublishReload(count int) {
	b.Publish(Event{Type: TypeTreeReloaded, Data: map[string]int{"nodes": count}})
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
