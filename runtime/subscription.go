package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"talkstream/domain"
)

type Kind string

const (
	KindConversationList Kind = "conversation_list"
	KindConversation     Kind = "conversation"
)

// Target is what a subscription observes: a user's conversation list or
// the messages of one conversation.
type Target struct {
	Kind         Kind
	User         domain.UserID
	Conversation domain.ConversationID
}

func (t Target) String() string {
	if t.Kind == KindConversation {
		return fmt.Sprintf("%s:%s", t.Kind, t.Conversation)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.User)
}

type State int32

const (
	Initializing State = iota
	Live
	Interrupted
	Closed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Live:
		return "live"
	case Interrupted:
		return "interrupted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Emission is one ordered delivery. Seq starts at 1 and has no holes.
// A degraded emission carries no update: Err wraps
// errors.ErrSubscriptionDegraded and the last update is now stale.
type Emission[U any] struct {
	Seq      uint64
	Update   U
	Degraded bool
	Err      error
}

// Subscription delivers the updates of one target to one subscriber.
// Updates is closed once the subscription reaches Closed.
type Subscription[U any] struct {
	ID         string
	Target     Target
	Subscriber domain.UserID

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	out    chan Emission[U]
	seq    uint64
	done   chan struct{}
	once   sync.Once
	onEmit func()
}

func newSubscription[U any](ctx context.Context, id string, subscriber domain.UserID, target Target, onEmit func()) *Subscription[U] {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription[U]{
		ID:         id,
		Target:     target,
		Subscriber: subscriber,
		ctx:        ctx,
		cancel:     cancel,
		out:        make(chan Emission[U]),
		done:       make(chan struct{}),
		onEmit:     onEmit,
	}
}

func (s *Subscription[U]) Updates() <-chan Emission[U] {
	return s.out
}

func (s *Subscription[U]) State() State {
	return State(s.state.Load())
}

// Close stops the subscription and waits for its task to exit.
// Nothing is emitted once Close returns.
func (s *Subscription[U]) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when the subscription reached Closed.
func (s *Subscription[U]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[U]) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Subscription[U]) emit(update U) bool {
	return s.send(Emission[U]{Update: update})
}

func (s *Subscription[U]) degrade(err error) bool {
	return s.send(Emission[U]{Degraded: true, Err: err})
}

func (s *Subscription[U]) send(e Emission[U]) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.seq++
	e.Seq = s.seq
	select {
	case s.out <- e:
		if s.onEmit != nil {
			s.onEmit()
		}
		return true
	case <-s.ctx.Done():
		return false
	}
}

// finish is deferred by the task goroutine.
func (s *Subscription[U]) finish() {
	s.setState(Closed)
	s.cancel()
	close(s.out)
	close(s.done)
}
