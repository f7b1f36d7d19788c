package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Subscription tracks one confirmed event registration.
type Subscription struct {
	Event        string
	RegisteredAt time.Time
	Events       uint64
	LastEventAt  time.Time
}

// Subscriptions stores confirmed registrations by event name. Registrations
// are connection-wide, so one registry belongs to one connection.
type Subscriptions struct {
	mu    sync.RWMutex
	items map[string]Subscription
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		items: make(map[string]Subscription),
	}
}

// Add records a confirmed registration. Re-adding keeps the counters.
func (s *Subscriptions) Add(event string, at time.Time) {
	key := strings.TrimSpace(event)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return
	}
	s.items[key] = Subscription{Event: key, RegisteredAt: at}
}

// MarkEvent counts one delivered event. Events for names that were never
// registered on this connection are ignored.
func (s *Subscriptions) MarkEvent(event string, at time.Time) (Subscription, bool) {
	key := strings.TrimSpace(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return Subscription{}, false
	}
	item.Events++
	item.LastEventAt = at
	s.items[key] = item
	return item, true
}

func (s *Subscriptions) Remove(event string) {
	key := strings.TrimSpace(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

func (s *Subscriptions) Get(event string) (Subscription, bool) {
	key := strings.TrimSpace(event)
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok
}

func (s *Subscriptions) List() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Event < out[j].Event
	})
	return out
}
