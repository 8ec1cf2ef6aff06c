package transport

import (
	"context"
	"sync"

	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// DefaultSubscriberBuffer is the number of pending notifications a slow
// subscriber may hold before new ones are dropped for it
const DefaultSubscriberBuffer = 32

// Hub is the in-app transport. The notification itself is already stored
// in the repository, so Send only pushes it to the recipient's open streams
// and succeeds when nobody is listening.
type Hub struct {
	mu     sync.RWMutex
	subs   map[types.ActorID]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch chan *model.Notification
}

var _ interfaces.Transport = &Hub{}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[types.ActorID]map[*subscriber]struct{}),
		buffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Channel() types.Channel {
	return types.ChannelInApp
}

// Subscribe registers a stream for actorID. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(actorID types.ActorID) (<-chan *model.Notification, func()) {
	sub := &subscriber{ch: make(chan *model.Notification, h.buffer)}

	h.mu.Lock()
	if h.subs[actorID] == nil {
		h.subs[actorID] = make(map[*subscriber]struct{})
	}
	h.subs[actorID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[actorID], sub)
			if len(h.subs[actorID]) == 0 {
				delete(h.subs, actorID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of open streams of actorID
func (h *Hub) Subscribers(actorID types.ActorID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[actorID])
}

// Send pushes n to every stream of address, the recipient's actor ID
func (h *Hub) Send(ctx context.Context, address string, n *model.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[types.ActorID(address)] {
		select {
		case sub.ch <- n:
		default:
			logging.From(ctx).Warn("in-app stream is full, dropping push",
				"recipient_id", address,
				"notification_id", n.ID,
			)
		}
	}
	return nil
}
