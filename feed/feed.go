// Package feed turns Badger key-prefix subscriptions into ordered streams of
// query snapshots. One underlying subscription is shared by every listener of
// the same query.
package feed

type Kind int

const (
	Added Kind = iota
	Modified
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Change[T any] struct {
	Kind Kind
	Key  string
	Doc  T
}

// Snapshot is the full result set of a query after one commit, in key order,
// with the documents that commit changed. Docs and Changes are shared between
// listeners and must not be modified.
type Snapshot[T any] struct {
	Docs    []T
	Changes []Change[T]
	Version uint64
	Initial bool
}

// Event carries either a snapshot or a terminal error wrapping
// errors.ErrWatchInterrupted. The stream is closed right after an error.
type Event[T any] struct {
	Snapshot Snapshot[T]
	Err      error
}

// Query selects the documents stored under Prefix that satisfy Match.
// Name identifies the query: watches with the same name are shared,
// so it must encode everything Prefix and Match depend on.
type Query[T any] struct {
	Name   string
	Prefix []byte
	Match  func(T) bool
}

func (q Query[T]) matches(doc T) bool {
	return q.Match == nil || q.Match(doc)
}

type Decoder[T any] func(key, value []byte) (T, error)

type Stream[T any] interface {
	Events() <-chan Event[T]
	Close()
}

type Watcher[T any] interface {
	Watch(q Query[T]) Stream[T]
}
