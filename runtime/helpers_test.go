package runtime

import (
	"context"
	"log/slog"
	"sync"
	"talkstream/domain"
	"talkstream/feed"
	"talkstream/repositories"
	"talkstream/services"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const waitFor = 5 * time.Second

var testPolicy = Policy{
	InitialBackoff:   time.Millisecond,
	MaxBackoff:       5 * time.Millisecond,
	DegradedAfter:    3,
	ResubscribeRate:  rate.Inf,
	ResubscribeBurst: 1,
	NameCacheSize:    100,
}

// stack is a complete sync core on a temporary store.
type stack struct {
	log       *slog.Logger
	users     *services.UserService
	directory *services.Directory
	messages  *services.MessageLog
	registry  *Registry
	engine    *Engine
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	userRepository := repositories.NewUserRepository(db)
	conversationRepository := repositories.NewConversationRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, nil)
	userFeed := feed.NewHub[domain.User](db, log, "users", repositories.DecodeUser, nil)
	conversationFeed := feed.NewHub[domain.Conversation](db, log, "conversations", repositories.DecodeConversation, nil)
	messageFeed := feed.NewHub[domain.Message](db, log, "messages", repositories.DecodeMessage, nil)

	s := &stack{log: log, registry: NewRegistry()}
	s.users = services.NewUserService(userRepository, log)
	s.directory = services.NewDirectory(conversationRepository, userRepository, log, nil)
	denormalizer := services.NewDenormalizer(messageRepository, log, nil, services.DefaultRetryPolicy)
	s.messages = services.NewMessageLog(conversationRepository, messageRepository, userRepository,
		denormalizer, messageFeed, log, nil, domain.DefaultMaxMessageLength)
	s.engine = NewEngine(log, nil, conversationFeed, messageFeed, userFeed, s.users, s.directory, s.registry, testPolicy)

	t.Cleanup(func() {
		s.engine.Shutdown()
		userFeed.Close()
		conversationFeed.Close()
		messageFeed.Close()
		_ = db.Close()
	})
	return s
}

func (s *stack) register(t *testing.T, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		_, err := s.users.Register(context.Background(), u)
		require.NoError(t, err)
	}
}

func receive[U any](t *testing.T, s *Subscription[U]) Emission[U] {
	t.Helper()
	select {
	case e, ok := <-s.Updates():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(waitFor):
		t.Fatal("no emission received")
		return Emission[U]{}
	}
}

func requireClosed[U any](t *testing.T, s *Subscription[U]) {
	t.Helper()
	select {
	case _, ok := <-s.Updates():
		require.False(t, ok, "unexpected emission")
	case <-time.After(waitFor):
		t.Fatal("subscription not closed")
	}
}

// scriptedStream is a feed stream driven by the test.
type scriptedStream[T any] struct {
	events chan feed.Event[T]
	closed chan struct{}
	once   sync.Once
}

func (s *scriptedStream[T]) Events() <-chan feed.Event[T] { return s.events }

func (s *scriptedStream[T]) Close() { s.once.Do(func() { close(s.closed) }) }

// scriptedWatcher hands every new stream to the test.
type scriptedWatcher[T any] struct {
	streams chan *scriptedStream[T]
}

func newScriptedWatcher[T any]() *scriptedWatcher[T] {
	return &scriptedWatcher[T]{streams: make(chan *scriptedStream[T], 64)}
}

func (w *scriptedWatcher[T]) Watch(feed.Query[T]) feed.Stream[T] {
	s := &scriptedStream[T]{events: make(chan feed.Event[T], 16), closed: make(chan struct{})}
	w.streams <- s
	return s
}

func (w *scriptedWatcher[T]) next(t *testing.T) *scriptedStream[T] {
	t.Helper()
	select {
	case s := <-w.streams:
		return s
	case <-time.After(waitFor):
		t.Fatal("no watch opened")
		return nil
	}
}
