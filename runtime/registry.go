package runtime

import (
	"slices"
	"strings"
	"sync"
	"talkstream/domain"
	"time"
)

type Set map[string]struct{}

type closer interface {
	Close()
}

// Entry describes an open subscription.
type Entry struct {
	ID         string        `json:"id"`
	Target     string        `json:"target"`
	Subscriber domain.UserID `json:"subscriber"`
	State      string        `json:"state"`
	OpenedAt   time.Time     `json:"openedAt"`
}

type registered struct {
	target Target
	entry  Entry
	state  func() State
	closer closer
}

// Registry tracks open subscriptions by id and by target.
type Registry struct {
	mu            sync.RWMutex
	subscriptions map[string]registered // map subscription -> registration
	targets       map[Target]Set        // map target to subscriptions
}

func NewRegistry() *Registry {
	return &Registry{
		subscriptions: make(map[string]registered),
		targets:       make(map[Target]Set),
	}
}

// Register records a subscription. If the target does not yet exist in the
// registry, it is initialized on the fly.
func (r *Registry) Register(id string, subscriber domain.UserID, target Target, state func() State, c closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscriptions[id] = registered{
		target: target,
		entry: Entry{
			ID:         id,
			Target:     target.String(),
			Subscriber: subscriber,
			OpenedAt:   time.Now().UTC(),
		},
		state:  state,
		closer: c,
	}
	if _, ok := r.targets[target]; !ok {
		r.targets[target] = make(Set)
	}
	r.targets[target][id] = struct{}{}
}

// Unregister forgets a subscription and never leaves empty target sets behind.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.subscriptions[id]
	if !ok {
		return
	}
	delete(r.subscriptions, id)
	if members, ok := r.targets[reg.target]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.targets, reg.target)
		}
	}
}

// CountFor returns the number of subscriptions observing target.
func (r *Registry) CountFor(target Target) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets[target])
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Entries lists open subscriptions ordered by target then id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.subscriptions))
	for _, reg := range r.subscriptions {
		entry := reg.entry
		entry.State = reg.state().String()
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := strings.Compare(a.Target, b.Target); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return entries
}

// CloseAll closes every registered subscription. Closing unregisters,
// so the closers are collected before the lock is released.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	closers := make([]closer, 0, len(r.subscriptions))
	for _, reg := range r.subscriptions {
		closers = append(closers, reg.closer)
	}
	r.mu.RUnlock()

	for _, c := range closers {
		c.Close()
	}
}
