package feed

import "sync"

// listener is one consumer of a watch. Events are queued without bound so a
// slow consumer never holds back the watch or the other listeners.
type listener[T any] struct {
	id    uint64
	watch *watch[T]
	queue *queue[Event[T]]
	out   chan Event[T]
	done  chan struct{}
	once  sync.Once
}

func newListener[T any](w *watch[T], id uint64) *listener[T] {
	return &listener[T]{
		id:    id,
		watch: w,
		queue: newQueue[Event[T]](),
		out:   make(chan Event[T]),
		done:  make(chan struct{}),
	}
}

func (l *listener[T]) Events() <-chan Event[T] {
	return l.out
}

// Close stops delivery. Events still queued are dropped.
func (l *listener[T]) Close() {
	l.once.Do(func() {
		close(l.done)
		l.watch.detach(l.id)
	})
}

func (l *listener[T]) pump() {
	defer close(l.out)
	for {
		select {
		case <-l.done:
			return
		case <-l.queue.signal:
		}
		for _, ev := range l.queue.popAll() {
			select {
			case l.out <- ev:
			case <-l.done:
				return
			}
			if ev.Err != nil {
				return
			}
		}
	}
}
