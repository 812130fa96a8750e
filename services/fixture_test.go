package services

import (
	"context"
	"log/slog"
	"talkstream/domain"
	"talkstream/feed"
	"talkstream/repositories"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db            *badger.DB
	log           *slog.Logger
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           *feed.Hub[domain.Message]
	denormalizer  *Denormalizer
	directory     *Directory
	messageLog    *MessageLog
	userService   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := &fixture{
		db:            db,
		log:           log,
		users:         repositories.NewUserRepository(db),
		conversations: repositories.NewConversationRepository(db, log),
		messages:      repositories.NewMessageRepository(db, log, nil),
		hub:           feed.NewHub[domain.Message](db, log, "messages", repositories.DecodeMessage, nil),
	}
	f.denormalizer = NewDenormalizer(f.messages, log, nil, DefaultRetryPolicy)
	f.directory = NewDirectory(f.conversations, f.users, log, nil)
	f.messageLog = NewMessageLog(f.conversations, f.messages, f.users, f.denormalizer, f.hub, log, nil, domain.DefaultMaxMessageLength)
	f.userService = NewUserService(f.users, log)
	t.Cleanup(func() {
		f.hub.Close()
		_ = db.Close()
	})
	return f
}

func (f *fixture) register(t *testing.T, ids ...domain.UserID) {
	t.Helper()
	for _, id := range ids {
		_, err := f.userService.Register(context.Background(), domain.User{ID: id, DisplayName: string(id), CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}
}

func (f *fixture) conversation(t *testing.T, a, b domain.UserID) domain.Conversation {
	t.Helper()
	f.register(t, a, b)
	c, err := f.directory.GetOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	return c
}
