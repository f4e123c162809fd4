// Package subscription tracks which clients watch which markets and owns the
// lifecycle of the per-market pollers.
package subscription

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Subscriber receives serialized payloads. Send must not block; an error
// means the subscriber is gone or saturated and should be evicted.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Handle is a running poller owned by the registry.
type Handle interface {
	Cancel()
	Done() <-chan struct{}
}

// Spawner starts polling for a market. It returns false when the market is
// unknown or its source has no connector.
type Spawner func(marketID string) (Handle, bool)

type subscriberSet map[string]Subscriber

type entry struct {
	mu      sync.Mutex
	subs    atomic.Pointer[subscriberSet]
	handle  Handle
	removed bool
}

func (e *entry) snapshot() subscriberSet {
	if p := e.subs.Load(); p != nil {
		return *p
	}
	return nil
}

// Stats summarizes registry contents.
type Stats struct {
	Markets     int `json:"markets"`
	Pollers     int `json:"pollers"`
	Subscribers int `json:"subscribers"`
}

// Registry maps market ids to subscriber sets. At most one poller runs per
// market and it exists exactly while the set is non-empty.
//
// Lock order is entry.mu before Registry.mu. Broadcast takes neither.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	spawn   Spawner
	logger  *slog.Logger
}

// NewRegistry creates a registry that starts pollers with spawn. spawn may be
// nil and injected later with SetSpawner.
func NewRegistry(spawn Spawner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		spawn:   spawn,
		logger:  logger.With(slog.String("component", "subscriptions")),
	}
}

// SetSpawner installs the poller factory. Markets subscribed before a
// spawner is installed get no poller until they are re-subscribed.
func (r *Registry) SetSpawner(spawn Spawner) {
	r.mu.Lock()
	r.spawn = spawn
	r.mu.Unlock()
}

func (r *Registry) spawner() Spawner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawn
}

func (r *Registry) lookup(marketID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[marketID]
}

func (r *Registry) getOrCreate(marketID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[marketID]
	if !ok {
		e = &entry{}
		r.entries[marketID] = e
	}
	return e
}

// Subscribe adds sub to marketID. The first subscriber starts the poller. If
// the last subscriber is concurrently leaving, Subscribe waits for that
// teardown to finish and then starts a fresh poller.
func (r *Registry) Subscribe(marketID string, sub Subscriber) {
	for {
		e := r.getOrCreate(marketID)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		cur := e.snapshot()
		if _, ok := cur[sub.ID()]; ok {
			e.mu.Unlock()
			return
		}
		next := make(subscriberSet, len(cur)+1)
		for id, s := range cur {
			next[id] = s
		}
		next[sub.ID()] = sub
		e.subs.Store(&next)

		if spawn := r.spawner(); len(next) == 1 && e.handle == nil && spawn != nil {
			if h, ok := spawn(marketID); ok {
				e.handle = h
				r.logger.Debug("poller started", slog.String("market_id", marketID))
			} else {
				r.logger.Warn("no poller for market", slog.String("market_id", marketID))
			}
		}
		e.mu.Unlock()
		return
	}
}

// Unsubscribe removes sub from marketID. When the set becomes empty the
// poller is cancelled and awaited before the entry is dropped.
func (r *Registry) Unsubscribe(marketID string, sub Subscriber) {
	e := r.lookup(marketID)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}

	cur := e.snapshot()
	if _, ok := cur[sub.ID()]; !ok {
		return
	}
	next := make(subscriberSet, len(cur))
	for id, s := range cur {
		if id != sub.ID() {
			next[id] = s
		}
	}
	e.subs.Store(&next)
	if len(next) > 0 {
		return
	}

	if e.handle != nil {
		e.handle.Cancel()
		<-e.handle.Done()
		e.handle = nil
		r.logger.Debug("poller stopped", slog.String("market_id", marketID))
	}
	e.removed = true

	r.mu.Lock()
	if r.entries[marketID] == e {
		delete(r.entries, marketID)
	}
	r.mu.Unlock()
}

// UnsubscribeFromAll removes sub from every market it is subscribed to.
func (r *Registry) UnsubscribeFromAll(sub Subscriber) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if _, ok := e.snapshot()[sub.ID()]; ok {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unsubscribe(id, sub)
	}
}

// Broadcast sends payload to every current subscriber of marketID and
// returns how many accepted it. Subscribers whose Send fails are evicted
// asynchronously, since the caller may be the poller that eviction waits on.
func (r *Registry) Broadcast(marketID string, payload []byte) int {
	e := r.lookup(marketID)
	if e == nil {
		return 0
	}

	var failed []Subscriber
	delivered := 0
	for _, s := range e.snapshot() {
		if err := s.Send(payload); err != nil {
			failed = append(failed, s)
			continue
		}
		delivered++
	}

	for _, s := range failed {
		r.logger.Info("evicting subscriber",
			slog.String("subscriber", s.ID()),
			slog.String("market_id", marketID),
		)
		go r.UnsubscribeFromAll(s)
	}
	return delivered
}

// Subscribers returns the ids subscribed to marketID, sorted.
func (r *Registry) Subscribers(marketID string) []string {
	e := r.lookup(marketID)
	if e == nil {
		return nil
	}
	cur := e.snapshot()
	ids := make([]string, 0, len(cur))
	for id := range cur {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasPoller reports whether a poller is currently running for marketID.
func (r *Registry) HasPoller(marketID string) bool {
	e := r.lookup(marketID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// Stats returns counts across all markets.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var st Stats
	unique := make(map[string]struct{})
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			st.Markets++
			if e.handle != nil {
				st.Pollers++
			}
			for id := range e.snapshot() {
				unique[id] = struct{}{}
			}
		}
		e.mu.Unlock()
	}
	st.Subscribers = len(unique)
	return st
}

// Close stops every poller and drops all subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.handle != nil {
			e.handle.Cancel()
			<-e.handle.Done()
			e.handle = nil
		}
		e.removed = true
		empty := subscriberSet{}
		e.subs.Store(&empty)
		e.mu.Unlock()
	}
}
