// Package broadcast implements a fan-out hub that delivers published values to
// every subscriber, optionally replaying the last value to late subscribers.
package broadcast

import (
	"sync/atomic"
)

const defaultBuffer = 64

// Option configures a Hub.
type Option func(*hubConfig)

type hubConfig struct {
	buffer   int
	replay   bool
	conflate bool
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(c *hubConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithReplay makes new subscribers receive the most recently published value
// immediately after subscribing.
func WithReplay() Option {
	return func(c *hubConfig) {
		c.replay = true
	}
}

// WithConflation makes a full subscriber drop its oldest pending value in
// favour of the newest one instead of skipping the newest.
func WithConflation() Option {
	return func(c *hubConfig) {
		c.conflate = true
	}
}

type lastValue[T any] struct {
	value T
	ok    bool
}

// Hub fans published values out to subscribers.
//
// Concurrency model: a single internal loop (goroutine) owns mutable state
// (subscribers + last value). Public methods talk to the loop through
// channels, so no mutexes are required. Values reach every subscriber in
// publish order.
type Hub[T any] struct {
	cfg hubConfig

	subscribeCh   chan chan T
	unsubscribeCh chan (<-chan T)
	publishCh     chan T
	countReqCh    chan chan int
	lastReqCh     chan chan lastValue[T]

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a hub and starts its loop.
func New[T any](opts ...Option) *Hub[T] {
	cfg := hubConfig{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Hub[T]{
		cfg:           cfg,
		subscribeCh:   make(chan chan T),
		unsubscribeCh: make(chan (<-chan T)),
		publishCh:     make(chan T, 256),
		countReqCh:    make(chan chan int),
		lastReqCh:     make(chan chan lastValue[T]),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go h.run()
	return h
}

func (h *Hub[T]) run() {
	defer close(h.stopped)

	clients := make(map[<-chan T]chan T)
	var last lastValue[T]

	deliver := func(ch chan T, v T) {
		select {
		case ch <- v:
			return
		default:
		}
		if !h.cfg.conflate {
			// Subscriber buffer full; skip to avoid blocking the loop.
			return
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}

	for {
		select {
		case <-h.stopCh:
			for _, ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = ch
			if h.cfg.replay && last.ok {
				deliver(ch, last.value)
			}

		case ch := <-h.unsubscribeCh:
			if c, ok := clients[ch]; ok {
				delete(clients, ch)
				close(c)
			}

		case v := <-h.publishCh:
			last = lastValue[T]{value: v, ok: true}
			for _, ch := range clients {
				deliver(ch, v)
			}

		case resp := <-h.countReqCh:
			resp <- len(clients)

		case resp := <-h.lastReqCh:
			resp <- last
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (h *Hub[T]) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Subscribe registers a new subscriber and returns its channel. The channel
// is closed by Unsubscribe or Close.
func (h *Hub[T]) Subscribe() <-chan T {
	ch := make(chan T, h.cfg.buffer)
	if h.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub[T]) Unsubscribe(ch <-chan T) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

// Publish hands v to the loop for delivery. It is a no-op after Close.
func (h *Hub[T]) Publish(v T) {
	if h.closed.Load() {
		return
	}
	select {
	case h.publishCh <- v:
	case <-h.stopped:
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub[T]) SubscriberCount() int {
	if h.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Last returns the most recently published value, if any.
func (h *Hub[T]) Last() (T, bool) {
	var zero T
	if h.closed.Load() {
		return zero, false
	}

	resp := make(chan lastValue[T], 1)
	select {
	case h.lastReqCh <- resp:
	case <-h.stopped:
		return zero, false
	}

	select {
	case lv := <-resp:
		return lv.value, lv.ok
	case <-h.stopped:
		return zero, false
	}
}
