package feed

import (
	"context"
	"log/slog"
	"sync"
	"talkstream/observability"

	"github.com/dgraph-io/badger/v4"
)

// Hub shares Badger subscriptions between listeners of the same query.
// One Hub serves one collection (users, conversations, messages).
// The underlying watch starts with the first listener and stops when the
// last one closes.
type Hub[T any] struct {
	db         *badger.DB
	log        *slog.Logger
	collection string
	decode     Decoder[T]
	metrics    *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[string]*watch[T]
}

func NewHub[T any](db *badger.DB, log *slog.Logger, collection string, decode Decoder[T], metrics *observability.Metrics) *Hub[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub[T]{
		db:         db,
		log:        log.With("collection", collection),
		collection: collection,
		decode:     decode,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		watches:    make(map[string]*watch[T]),
	}
}

// Watch attaches a new listener to the watch of q, starting it if needed.
// The first event of the stream is always the current result set.
func (h *Hub[T]) Watch(q Query[T]) Stream[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.watches[q.Name]
	if !ok {
		w = newWatch(h, q)
		h.watches[q.Name] = w
		h.metrics.WatchStarted(h.collection)
		h.log.Debug("Starting watch", "query", q.Name)
		go w.run()
	}
	return w.attach()
}

// Active returns the number of running underlying watches.
func (h *Hub[T]) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}

// Close stops every watch. Remaining listeners receive an interruption.
func (h *Hub[T]) Close() {
	h.cancel()
}

func (h *Hub[T]) forget(w *watch[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watches[w.query.Name] == w {
		delete(h.watches, w.query.Name)
	}
}
