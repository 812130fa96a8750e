package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"talkstream/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
)

const (
	helloPrefix   = "_feed:hello:"
	helloInterval = 5 * time.Millisecond
	helloTTL      = time.Minute
)

type watch[T any] struct {
	hub     *Hub[T]
	query   Query[T]
	hello   []byte
	ctx     context.Context
	cancel  context.CancelFunc
	batches *queue[*badger.KVList]

	mu        sync.Mutex
	listeners map[uint64]*listener[T]
	nextID    uint64
	ready     bool
	dead      bool
	keys      []string
	docs      map[string]T
	version   uint64
}

func newWatch[T any](h *Hub[T], q Query[T]) *watch[T] {
	ctx, cancel := context.WithCancel(h.ctx)
	return &watch[T]{
		hub:       h,
		query:     q,
		hello:     []byte(helloPrefix + uuid.NewString()),
		ctx:       ctx,
		cancel:    cancel,
		batches:   newQueue[*badger.KVList](),
		listeners: make(map[uint64]*listener[T]),
		docs:      make(map[string]T),
	}
}

// run owns the watch lifecycle:
//  1. subscribe to the query prefix and to a private marker key,
//  2. write the marker until the subscription sees it, so no later commit can be missed,
//  3. read the result set at a snapshot timestamp,
//  4. apply every notified commit newer than that timestamp, one snapshot per commit.
func (w *watch[T]) run() {
	subscribed := make(chan error, 1)
	go func() {
		matches := []pb.Match{{Prefix: w.query.Prefix}, {Prefix: w.hello}}
		subscribed <- w.hub.db.Subscribe(w.ctx, func(kvs *badger.KVList) error {
			w.batches.push(kvs)
			return nil
		}, matches)
	}()
	w.terminate(w.serve(subscribed))
}

func (w *watch[T]) serve(subscribed <-chan error) error {
	if err := w.register(subscribed); err != nil {
		return err
	}
	readTs, err := w.load()
	if err != nil {
		return interrupted(err)
	}
	for {
		select {
		case <-w.batches.signal:
			w.process(readTs)
		case err := <-subscribed:
			w.process(readTs)
			return interrupted(err)
		}
	}
}

func (w *watch[T]) register(subscribed <-chan error) error {
	ticker := time.NewTicker(helloInterval)
	defer ticker.Stop()
	for {
		err := w.hub.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(w.hello, []byte{1}).WithTTL(helloTTL))
		})
		if err != nil {
			return interrupted(fmt.Errorf("register watch: %w", err))
		}
		select {
		case <-w.batches.signal:
			// Everything notified so far committed before the read below
			if w.sawHello() {
				return nil
			}
		case <-ticker.C:
		case err := <-subscribed:
			return interrupted(err)
		}
	}
}

func (w *watch[T]) sawHello() bool {
	seen := false
	for _, batch := range w.batches.popAll() {
		for _, kv := range batch.Kv {
			if string(kv.Key) == string(w.hello) {
				seen = true
			}
		}
	}
	return seen
}

func (w *watch[T]) load() (uint64, error) {
	txn := w.hub.db.NewTransaction(false)
	defer txn.Discard()
	readTs := txn.ReadTs()

	docs := make(map[string]T)
	var keys []string
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(w.query.Prefix); it.ValidForPrefix(w.query.Prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		var doc T
		err := item.Value(func(value []byte) error {
			var err error
			doc, err = w.hub.decode(key, value)
			return err
		})
		if err != nil {
			w.hub.log.Warn("Skipping undecodable document", "key", string(key), "error", err)
			continue
		}
		if !w.query.matches(doc) {
			continue
		}
		docs[string(key)] = doc
		keys = append(keys, string(key))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs, w.keys, w.version, w.ready = docs, keys, readTs, true
	initial := w.snapshotLocked(nil, true)
	for _, l := range w.listeners {
		l.queue.push(Event[T]{Snapshot: initial})
	}
	return readTs, nil
}

// process applies pending notifications. Badger delivers them in commit
// order; consecutive entries sharing a version belong to one commit.
func (w *watch[T]) process(readTs uint64) {
	for _, batch := range w.batches.popAll() {
		var group []*pb.KV
		for _, kv := range batch.Kv {
			if kv.Version <= readTs || string(kv.Key) == string(w.hello) {
				continue
			}
			if len(group) > 0 && group[0].Version != kv.Version {
				w.commit(group)
				group = nil
			}
			group = append(group, kv)
		}
		if len(group) > 0 {
			w.commit(group)
		}
	}
}

func (w *watch[T]) commit(kvs []*pb.KV) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []Change[T]
	for _, kv := range kvs {
		key := string(kv.Key)
		previous, present := w.docs[key]
		if len(kv.Value) == 0 {
			if present {
				w.removeLocked(key)
				changes = append(changes, Change[T]{Kind: Removed, Key: key, Doc: previous})
			}
			continue
		}
		doc, err := w.hub.decode(kv.Key, kv.Value)
		if err != nil {
			w.hub.log.Warn("Skipping undecodable document", "key", key, "error", err)
			continue
		}
		switch {
		case !w.query.matches(doc):
			if present {
				w.removeLocked(key)
				changes = append(changes, Change[T]{Kind: Removed, Key: key, Doc: previous})
			}
		case present:
			w.docs[key] = doc
			changes = append(changes, Change[T]{Kind: Modified, Key: key, Doc: doc})
		default:
			w.docs[key] = doc
			i, _ := slices.BinarySearch(w.keys, key)
			w.keys = slices.Insert(w.keys, i, key)
			changes = append(changes, Change[T]{Kind: Added, Key: key, Doc: doc})
		}
	}
	w.version = kvs[0].Version
	if len(changes) == 0 {
		return
	}
	snapshot := w.snapshotLocked(changes, false)
	for _, l := range w.listeners {
		l.queue.push(Event[T]{Snapshot: snapshot})
	}
}

func (w *watch[T]) removeLocked(key string) {
	delete(w.docs, key)
	if i, found := slices.BinarySearch(w.keys, key); found {
		w.keys = slices.Delete(w.keys, i, i+1)
	}
}

// snapshotLocked builds the snapshot of the current state.
// A nil changes list reports every document as added.
func (w *watch[T]) snapshotLocked(changes []Change[T], initial bool) Snapshot[T] {
	docs := make([]T, 0, len(w.keys))
	for _, key := range w.keys {
		docs = append(docs, w.docs[key])
	}
	if changes == nil {
		changes = make([]Change[T], 0, len(w.keys))
		for _, key := range w.keys {
			changes = append(changes, Change[T]{Kind: Added, Key: key, Doc: w.docs[key]})
		}
	}
	return Snapshot[T]{Docs: docs, Changes: changes, Version: w.version, Initial: initial}
}

func (w *watch[T]) attach() Stream[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	l := newListener(w, w.nextID)
	w.listeners[l.id] = l
	if w.ready {
		l.queue.push(Event[T]{Snapshot: w.snapshotLocked(nil, true)})
	}
	go l.pump()
	return l
}

// detach removes a listener. The last one stops the watch.
// Lock order is hub then watch, like Hub.Watch.
func (w *watch[T]) detach(id uint64) {
	w.hub.mu.Lock()
	defer w.hub.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead {
		return
	}
	delete(w.listeners, id)
	if len(w.listeners) > 0 {
		return
	}
	w.dead = true
	if w.hub.watches[w.query.Name] == w {
		delete(w.hub.watches, w.query.Name)
	}
	w.cancel()
}

// terminate runs once serve returned. Listeners still attached were not
// asking for the stop, so they are told the watch was interrupted.
func (w *watch[T]) terminate(err error) {
	w.hub.forget(w)

	w.mu.Lock()
	listeners := w.listeners
	w.listeners = nil
	w.dead = true
	w.mu.Unlock()

	w.cancel()
	w.hub.metrics.WatchStopped(w.hub.collection)
	if len(listeners) == 0 {
		w.hub.log.Debug("Watch stopped", "query", w.query.Name)
		return
	}
	w.hub.metrics.WatchInterrupted(w.hub.collection)
	w.hub.log.Warn("Watch interrupted", "query", w.query.Name, "listeners", len(listeners), "error", err)
	for _, l := range listeners {
		l.queue.push(Event[T]{Err: err})
	}
}

func interrupted(cause error) error {
	if cause == nil {
		cause = fmt.Errorf("store subscription ended")
	}
	return fmt.Errorf("%w: %v", errors.ErrWatchInterrupted, cause)
}
