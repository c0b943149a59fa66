package pubsub

import (
	"context"
	"sync"

	"shop-mirror-sync-layer/internal/domain"

	"github.com/rs/zerolog"
)

// eventBuffer bounds how many undelivered events a slow subscriber may
// accumulate before further events are dropped for it.
const eventBuffer = 10

// SyncEventFilter narrows a subscription to one shop and/or a set of
// event types. A nil filter receives everything.
type SyncEventFilter struct {
	ShopID string
	Types  []domain.SyncEventType
}

func (f *SyncEventFilter) matches(event *domain.SyncEvent) bool {
	if f == nil {
		return true
	}
	if f.ShopID != "" && f.ShopID != event.ShopID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Subscription delivers matching sync events until the subscriber's
// context ends or Close is called. Events is closed on teardown.
type Subscription struct {
	Events <-chan *domain.SyncEvent

	id uint64
	ps *SyncEventPubSub
}

// Close tears the subscription down and closes Events.
func (s *Subscription) Close() {
	s.ps.drop(s.id)
}

type subscriber struct {
	filter *SyncEventFilter
	events chan *domain.SyncEvent
}

// SyncEventPubSub fans sync events out to UI subscribers. Delivery is
// best effort: a subscriber that stops draining loses events instead of
// blocking the sync run that published them.
type SyncEventPubSub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	lastID uint64
	logger zerolog.Logger
}

// NewSyncEventPubSub creates a new sync event hub
func NewSyncEventPubSub(logger zerolog.Logger) *SyncEventPubSub {
	return &SyncEventPubSub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a subscriber. The subscription is torn down when
// ctx ends.
func (ps *SyncEventPubSub) Subscribe(ctx context.Context, filter *SyncEventFilter) *Subscription {
	sub := &subscriber{
		filter: filter,
		events: make(chan *domain.SyncEvent, eventBuffer),
	}

	ps.mu.Lock()
	ps.lastID++
	id := ps.lastID
	ps.subs[id] = sub
	ps.mu.Unlock()

	ps.logger.Debug().
		Uint64("subscriptionId", id).
		Msg("Sync event subscription created")

	go func() {
		<-ctx.Done()
		ps.drop(id)
	}()

	return &Subscription{Events: sub.events, id: id, ps: ps}
}

func (ps *SyncEventPubSub) drop(id uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[id]
	if !ok {
		return
	}
	delete(ps.subs, id)
	close(sub.events)
}

// Publish delivers an event to every matching subscriber without
// blocking.
func (ps *SyncEventPubSub) Publish(event *domain.SyncEvent) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for id, sub := range ps.subs {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			ps.logger.Warn().
				Uint64("subscriptionId", id).
				Str("shopId", event.ShopID).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}
