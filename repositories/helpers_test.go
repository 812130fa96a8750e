package repositories

import (
	"log/slog"
	"talkstream/domain"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedConversation(t *testing.T, db *badger.DB, a, b domain.UserID) domain.Conversation {
	t.Helper()
	repo := NewConversationRepository(db, slog.Default())
	conversation, _, err := repo.CreateIfAbsent(domain.NewConversation(a, b, time.Now().UTC()))
	require.NoError(t, err)
	return conversation
}
