package events

import (
	"context"

	"github.com/danmuck/wearctl/internal/observability"
	"github.com/rs/zerolog/log"
)

// Hub fans published events out to subscribers. Publish never blocks; an
// event that does not fit the broadcast buffer or a subscriber buffer is
// dropped for that receiver and counted.
type Hub struct {
	broadcast  chan Event
	register   chan chan Event
	unregister chan (<-chan Event)
	clients    map[<-chan Event]chan Event
	clientBuf  int
	done       chan struct{}
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Event, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan Event, 1024),
		register:   make(chan chan Event),
		unregister: make(chan (<-chan Event)),
		clients:    make(map[<-chan Event]chan Event),
		clientBuf:  256,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers events until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, ch := range h.clients {
				close(ch)
			}
			clear(h.clients)
			log.Debug().Msg("events.Hub.Run stopped")
			return
		case ch := <-h.register:
			h.clients[ch] = ch
		case key := <-h.unregister:
			if ch, ok := h.clients[key]; ok {
				delete(h.clients, key)
				close(ch)
			}
		case ev := <-h.broadcast:
			for _, ch := range h.clients {
				select {
				case ch <- ev:
				default:
					observability.RecordDroppedEvent()
				}
			}
		}
	}
}

func (h *Hub) Subscribe() <-chan Event {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer registers a new subscriber. After Run has stopped the
// returned channel is already closed.
func (h *Hub) SubscribeWithBuffer(size int) <-chan Event {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan Event, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch <-chan Event) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		observability.RecordDroppedEvent()
		log.Debug().Msgf("events.Hub.Publish dropped kind=%s device=%s", ev.Kind(), ev.DeviceID())
	}
}

// Emitter returns an Emitter bound to Publish.
func (h *Hub) Emitter() Emitter {
	return h.Publish
}
