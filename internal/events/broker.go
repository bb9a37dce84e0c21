package events

import "sync"

// Broker fans out Events to any number of subscribers, grounded on the
// teacher's sqlite.Store.Subscribe/notifySubscribers pair (pkg/store/
// sqlite/sqlite.go) but broadcasting full Event values instead of bare
// dialog IDs, so a subscriber never needs a follow-up read to learn
// what changed. Used to drive the dev-console watch socket in
// internal/httpapi/ws.go alongside the primary SSE stream.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Event]string // channel -> dialogID filter ("" means all)
}

// NewBroker returns an empty Broker ready to use.
func NewBroker() *Broker {
	return &Broker{subs: map[chan Event]string{}}
}

// Subscribe registers a new listener. If dialogID is non-empty, only
// events for that dialog are delivered; otherwise every event is. The
// returned func unsubscribes and closes the channel.
func (b *Broker) Subscribe(dialogID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = dialogID
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber whose filter matches. Slow
// subscribers are dropped rather than blocking the publisher, matching
// the teacher's notifySubscribers non-blocking send.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filter := range b.subs {
		if filter != "" && filter != ev.DialogID {
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
