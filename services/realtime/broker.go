package realtime

import (
	"context"
	"sync"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// subscriberBuffer is how many events a slow subscriber may lag behind before events are dropped for it.
const subscriberBuffer = 64

type subscriber struct {
	events chan core.ChangeEvent
	tables map[string]bool // empty: every table
}

func (s subscriber) wants(table string) bool {
	return len(s.tables) == 0 || s.tables[table]
}

// Broker fans change events out to in-process subscribers.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
	logger core.Logger
}

var _ core.EventPublisher = (*Broker)(nil)

func NewBroker(logger core.Logger) *Broker {
	return &Broker{subs: make(map[int]subscriber), logger: logger}
}

// Publish never blocks: a subscriber whose buffer is full misses evt.
func (b *Broker) Publish(_ context.Context, evt core.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, s := range b.subs {
		if !s.wants(evt.Table) {
			continue
		}
		select {
		case s.events <- evt:
		default:
			b.logger.Warn("realtime subscriber lagging, event dropped", map[string]interface{}{
				"subscriber": id,
				"table":      evt.Table,
				"record_id":  evt.RecordID,
			})
		}
	}
}

// Subscribe returns a channel of the events on tables (all tables when none given)
// and a cancel func that unsubscribes and closes the channel.
func (b *Broker) Subscribe(tables ...string) (<-chan core.ChangeEvent, func()) {
	s := subscriber{events: make(chan core.ChangeEvent, subscriberBuffer), tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		if t != "" {
			s.tables[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.events)
		})
	}
	return s.events, cancel
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
