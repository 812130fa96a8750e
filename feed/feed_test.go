package feed

import (
	"log/slog"
	"strings"
	"talkstream/errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func decodeText(_, value []byte) (string, error) {
	return string(value), nil
}

func newTextHub(db *badger.DB) *Hub[string] {
	return NewHub[string](db, logs.GetLoggerFromLevel(slog.LevelDebug), "texts", decodeText, nil)
}

func put(t *testing.T, db *badger.DB, kv ...string) {
	t.Helper()
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		for i := 0; i+1 < len(kv); i += 2 {
			if err := txn.Set([]byte(kv[i]), []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func del(t *testing.T, db *badger.DB, key string) {
	t.Helper()
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}))
}

func next[T any](t *testing.T, s Stream[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("no event received")
		return Event[T]{}
	}
}

func TestHub_Watch(t *testing.T) {
	t.Run("should start with the current result set", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		put(t, db, "t:2", "two", "t:1", "one", "other:1", "ignored")
		hub := newTextHub(db)
		defer hub.Close()

		stream := hub.Watch(Query[string]{Name: "t", Prefix: []byte("t:")})
		defer stream.Close()

		ev := next(t, stream)
		req.NoError(ev.Err)
		req.True(ev.Snapshot.Initial)
		req.Equal([]string{"one", "two"}, ev.Snapshot.Docs)
		req.Len(ev.Snapshot.Changes, 2)
		req.Equal(Added, ev.Snapshot.Changes[0].Kind)
	})

	t.Run("should emit one snapshot per commit", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		hub := newTextHub(db)
		defer hub.Close()
		stream := hub.Watch(Query[string]{Name: "t", Prefix: []byte("t:")})
		defer stream.Close()
		req.Empty(next(t, stream).Snapshot.Docs)

		// When two documents are written by one transaction
		put(t, db, "t:1", "one", "t:2", "two")
		ev := next(t, stream)
		req.False(ev.Snapshot.Initial)
		req.Equal([]string{"one", "two"}, ev.Snapshot.Docs)
		req.Len(ev.Snapshot.Changes, 2)

		// When a document is modified
		put(t, db, "t:1", "uno")
		ev = next(t, stream)
		req.Equal([]string{"uno", "two"}, ev.Snapshot.Docs)
		req.Equal([]Change[string]{{Kind: Modified, Key: "t:1", Doc: "uno"}}, ev.Snapshot.Changes)

		// When a document is deleted
		del(t, db, "t:2")
		ev = next(t, stream)
		req.Equal([]string{"uno"}, ev.Snapshot.Docs)
		req.Equal([]Change[string]{{Kind: Removed, Key: "t:2", Doc: "two"}}, ev.Snapshot.Changes)
	})

	t.Run("should follow the match predicate", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		hub := newTextHub(db)
		defer hub.Close()
		query := Query[string]{
			Name:   "t:starred",
			Prefix: []byte("t:"),
			Match:  func(doc string) bool { return strings.HasPrefix(doc, "*") },
		}
		stream := hub.Watch(query)
		defer stream.Close()
		req.Empty(next(t, stream).Snapshot.Docs)

		put(t, db, "t:1", "plain")
		put(t, db, "t:2", "*starred")
		ev := next(t, stream)
		req.Equal([]string{"*starred"}, ev.Snapshot.Docs)

		// Leaving the result set is a removal
		put(t, db, "t:2", "plain again")
		ev = next(t, stream)
		req.Empty(ev.Snapshot.Docs)
		req.Equal(Removed, ev.Snapshot.Changes[0].Kind)
	})

	t.Run("should share one watch between listeners of a query", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		hub := newTextHub(db)
		defer hub.Close()
		query := Query[string]{Name: "t", Prefix: []byte("t:")}

		first := hub.Watch(query)
		second := hub.Watch(query)
		req.Equal(1, hub.Active())
		next(t, first)
		next(t, second)

		put(t, db, "t:1", "one")
		req.Equal([]string{"one"}, next(t, first).Snapshot.Docs)
		req.Equal([]string{"one"}, next(t, second).Snapshot.Docs)

		// Then the watch stops with its last listener
		first.Close()
		req.Equal(1, hub.Active())
		second.Close()
		req.Equal(0, hub.Active())
	})

	t.Run("should give a late listener the current state", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		hub := newTextHub(db)
		defer hub.Close()
		query := Query[string]{Name: "t", Prefix: []byte("t:")}
		first := hub.Watch(query)
		defer first.Close()
		next(t, first)
		put(t, db, "t:1", "one")
		next(t, first)

		late := hub.Watch(query)
		defer late.Close()

		ev := next(t, late)
		req.True(ev.Snapshot.Initial)
		req.Equal([]string{"one"}, ev.Snapshot.Docs)
	})

	t.Run("should close the stream of a closed listener", func(t *testing.T) {
		req := require.New(t)
		db := openDB(t)
		hub := newTextHub(db)
		defer hub.Close()
		stream := hub.Watch(Query[string]{Name: "t", Prefix: []byte("t:")})
		next(t, stream)

		stream.Close()

		select {
		case _, ok := <-stream.Events():
			req.False(ok)
		case <-time.After(waitFor):
			t.Fatal("stream not closed")
		}
	})
}

func TestHub_Interruption(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	hub := newTextHub(db)
	defer hub.Close()
	stream := hub.Watch(Query[string]{Name: "t", Prefix: []byte("t:")})
	defer stream.Close()
	next(t, stream)

	// When the store goes away under an attached listener
	req.NoError(db.Close())

	// Then the listener is told and its stream ends
	ev := next(t, stream)
	req.ErrorIs(ev.Err, errors.ErrWatchInterrupted)
	select {
	case _, ok := <-stream.Events():
		req.False(ok)
	case <-time.After(waitFor):
		t.Fatal("stream not closed")
	}
	req.Eventually(func() bool { return hub.Active() == 0 }, waitFor, 10*time.Millisecond)
}

func TestQueue(t *testing.T) {
	req := require.New(t)
	q := newQueue[int]()
	for i := range 1000 {
		q.push(i)
	}
	req.Equal(1000, q.len())
	<-q.signal
	items := q.popAll()
	req.Len(items, 1000)
	req.Equal(0, items[0])
	req.Equal(999, items[999])
	req.Zero(q.len())
}
