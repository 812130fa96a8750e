package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"talkstream/contract"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/feed"
	"talkstream/observability"
	"talkstream/projection"
	"talkstream/repositories"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Policy tunes how subscriptions recover from interrupted watches.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DegradedAfter consecutive failed resubscriptions raise one degraded signal.
	DegradedAfter int
	// ResubscribeRate bounds re-watches across all subscriptions of the process.
	ResubscribeRate  rate.Limit
	ResubscribeBurst int
	NameCacheSize    int64
}

var DefaultPolicy = Policy{
	InitialBackoff:   50 * time.Millisecond,
	MaxBackoff:       5 * time.Second,
	DegradedAfter:    3,
	ResubscribeRate:  50,
	ResubscribeBurst: 20,
	NameCacheSize:    1000,
}

func (p Policy) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Engine opens subscriptions and drives each one in its own goroutine.
// It never writes to the store.
type Engine struct {
	log           *slog.Logger
	metrics       *observability.Metrics
	conversations feed.Watcher[domain.Conversation]
	messages      feed.Watcher[domain.Message]
	users         feed.Watcher[domain.User]
	profiles      contract.UserReader
	directory     contract.ConversationReader
	registry      *Registry
	policy        Policy
	limiter       *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func NewEngine(
	log *slog.Logger,
	metrics *observability.Metrics,
	conversations feed.Watcher[domain.Conversation],
	messages feed.Watcher[domain.Message],
	users feed.Watcher[domain.User],
	profiles contract.UserReader,
	directory contract.ConversationReader,
	registry *Registry,
	policy Policy,
) *Engine {
	return &Engine{
		log:           log,
		metrics:       metrics,
		conversations: conversations,
		messages:      messages,
		users:         users,
		profiles:      profiles,
		directory:     directory,
		registry:      registry,
		policy:        policy,
		limiter:       rate.NewLimiter(policy.ResubscribeRate, policy.ResubscribeBurst),
	}
}

// OpenConversationList subscribes caller to its conversation list.
// The first emission is the full list, each later one the list after a commit.
// The subscription ends with ctx or Close.
func (e *Engine) OpenConversationList(ctx context.Context, caller domain.UserID) (*Subscription[projection.ConversationListUpdate], error) {
	if err := domain.ValidateID(caller); err != nil {
		return nil, err
	}
	names, err := projection.NewNames(e.profiles, e.policy.NameCacheSize, e.log, e.metrics)
	if err != nil {
		return nil, fmt.Errorf("name cache: %w", err)
	}
	target := Target{Kind: KindConversationList, User: caller}
	s, err := open[projection.ConversationListUpdate](ctx, e, caller, target)
	if err != nil {
		names.Close()
		return nil, err
	}
	go func() {
		defer e.release(s.ID, target)
		defer s.finish()
		defer names.Close()
		e.runConversationList(s, caller, names)
	}()
	return s, nil
}

// OpenConversation subscribes caller to the messages of a conversation it
// participates in. The first emission is the whole timeline, then appended
// messages in ordering-key order.
func (e *Engine) OpenConversation(ctx context.Context, caller domain.UserID, id domain.ConversationID) (*Subscription[projection.TimelineUpdate], error) {
	if _, err := e.directory.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	target := Target{Kind: KindConversation, Conversation: id}
	s, err := open[projection.TimelineUpdate](ctx, e, caller, target)
	if err != nil {
		return nil, err
	}
	go func() {
		defer e.release(s.ID, target)
		defer s.finish()
		e.runConversation(s, id)
	}()
	return s, nil
}

func open[U any](ctx context.Context, e *Engine, caller domain.UserID, target Target) (*Subscription[U], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.ErrSubscriptionClosed
	}
	kind := string(target.Kind)
	s := newSubscription[U](ctx, uuid.NewString(), caller, target, func() { e.metrics.Emission(kind) })
	e.registry.Register(s.ID, caller, target, s.State, s)
	e.metrics.SubscriptionOpened(kind)
	e.log.Debug("Subscription opened", "subscription", s.ID, "target", target.String(), "subscriber", caller)
	return s, nil
}

func (e *Engine) release(id string, target Target) {
	e.registry.Unregister(id)
	e.metrics.SubscriptionClosed(string(target.Kind))
	e.log.Debug("Subscription closed", "subscription", id, "target", target.String())
}

// Shutdown closes every subscription and refuses new ones.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.registry.CloseAll()
}

func (e *Engine) runConversationList(s *Subscription[projection.ConversationListUpdate], caller domain.UserID, names *projection.Names) {
	ctx := s.ctx
	resolve := names.Resolver(ctx)
	list := projection.NewConversationList(caller)
	query := repositories.ConversationsOf(caller)

	conversations, snapshot, ok := connect(e, s, e.conversations, query)
	if !ok {
		return
	}
	defer func() {
		if conversations != nil {
			conversations.Close()
		}
	}()
	if !s.emit(list.Load(snapshot.Docs, resolve)) {
		return
	}
	s.setState(Live)

	// Profile changes only matter for rows on screen; the watch is shared
	// by every list subscription of the process.
	users := e.users.Watch(repositories.AllUsers())
	defer func() {
		if users != nil {
			users.Close()
		}
	}()
	var usersRetry <-chan time.Time
	usersBackoff := e.policy.backoff()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-conversations.Events():
			if ok && ev.Err == nil {
				if update, changed := list.Apply(ev.Snapshot.Changes, resolve); changed && !s.emit(update) {
					return
				}
				continue
			}
			e.log.Warn("Conversation list watch interrupted", "subscription", s.ID, "error", ev.Err)
			s.setState(Interrupted)
			conversations.Close()
			if conversations, snapshot, ok = connect(e, s, e.conversations, query); !ok {
				return
			}
			if update, changed := list.Resync(snapshot.Docs, resolve); changed && !s.emit(update) {
				return
			}
			s.setState(Live)

		case ev, ok := <-events(users):
			if ok && ev.Err == nil {
				usersBackoff.Reset()
				touched := ev.Snapshot.Changes
				if ev.Snapshot.Initial {
					// Renames committed before this watch started are only visible here
					names.Purge()
					touched = nil
					for id := range list.Participants() {
						touched = append(touched, feed.Change[domain.User]{Kind: feed.Modified, Doc: domain.User{ID: id}})
					}
				}
				displayed := list.Participants()
				for _, change := range touched {
					names.Invalidate(change.Doc.ID)
					if _, ok := displayed[change.Doc.ID]; !ok {
						continue
					}
					if update, changed := list.Refresh(change.Doc.ID, resolve); changed && !s.emit(update) {
						return
					}
				}
				continue
			}
			e.log.Warn("User watch interrupted", "subscription", s.ID, "error", ev.Err)
			users.Close()
			users = nil
			usersRetry = time.After(usersBackoff.NextBackOff())

		case <-usersRetry:
			usersRetry = nil
			users = e.users.Watch(repositories.AllUsers())
		}
	}
}

func (e *Engine) runConversation(s *Subscription[projection.TimelineUpdate], id domain.ConversationID) {
	timeline := projection.NewTimeline(id)
	query := repositories.MessagesOf(id)

	messages, snapshot, ok := connect(e, s, e.messages, query)
	if !ok {
		return
	}
	defer func() {
		if messages != nil {
			messages.Close()
		}
	}()
	if !s.emit(timeline.Load(snapshot.Docs)) {
		return
	}
	s.setState(Live)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-messages.Events():
			if ok && ev.Err == nil {
				if update, changed := timeline.Apply(ev.Snapshot); changed && !s.emit(update) {
					return
				}
				continue
			}
			e.log.Warn("Conversation watch interrupted", "subscription", s.ID, "error", ev.Err)
			s.setState(Interrupted)
			messages.Close()
			if messages, snapshot, ok = connect(e, s, e.messages, query); !ok {
				return
			}
			if update, changed := timeline.Resync(snapshot.Docs); changed && !s.emit(update) {
				return
			}
			s.setState(Live)
		}
	}
}

// connect watches q until a first snapshot arrives. Failed attempts back off
// exponentially; after Policy.DegradedAfter consecutive failures the
// subscriber is told once that its data is stale. It only gives up when the
// subscription is closed.
func connect[T, U any](e *Engine, s *Subscription[U], watcher feed.Watcher[T], q feed.Query[T]) (feed.Stream[T], feed.Snapshot[T], bool) {
	ctx := s.ctx
	b := e.policy.backoff()
	failures := 0
	for {
		stream := watcher.Watch(q)
		snapshot, err := first(ctx, stream)
		if err == nil {
			return stream, snapshot, true
		}
		stream.Close()
		if ctx.Err() != nil {
			return nil, feed.Snapshot[T]{}, false
		}

		s.setState(Interrupted)
		failures++
		e.log.Warn("Watch attempt failed", "subscription", s.ID, "query", q.Name, "attempt", failures, "error", err)
		if failures == e.policy.DegradedAfter {
			e.metrics.Degraded(string(s.Target.Kind))
			if !s.degrade(fmt.Errorf("%w: %d failed attempts: %v", errors.ErrSubscriptionDegraded, failures, err)) {
				return nil, feed.Snapshot[T]{}, false
			}
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, feed.Snapshot[T]{}, false
		case <-timer.C:
		}
		if err = e.limiter.Wait(ctx); err != nil {
			return nil, feed.Snapshot[T]{}, false
		}
	}
}

func first[T any](ctx context.Context, stream feed.Stream[T]) (feed.Snapshot[T], error) {
	select {
	case <-ctx.Done():
		return feed.Snapshot[T]{}, ctx.Err()
	case ev, ok := <-stream.Events():
		if !ok {
			return feed.Snapshot[T]{}, fmt.Errorf("%w: stream closed", errors.ErrWatchInterrupted)
		}
		return ev.Snapshot, ev.Err
	}
}

func events[T any](stream feed.Stream[T]) <-chan feed.Event[T] {
	if stream == nil {
		return nil
	}
	return stream.Events()
}
