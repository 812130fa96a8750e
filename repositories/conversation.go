//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"talkstream/domain"
	"talkstream/errors"

	"github.com/dgraph-io/badger/v4"
)

// A conflicting create is re-run once the winner committed,
// so the second attempt observes it.
const maxCreateAttempts = 3

type IConversationRepository interface {
	CreateIfAbsent(conversation domain.Conversation) (domain.Conversation, bool, error)
	Get(id domain.ConversationID) (domain.Conversation, error)
	ListByParticipant(user domain.UserID) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

// CreateIfAbsent writes the conversation and its participant index entries
// unless a conversation with the same identifier exists. It returns the stored
// conversation and whether this call created it.
//
// Two concurrent creations of the same identifier conflict at commit;
// the loser re-runs and returns the winner's record.
func (c ConversationRepository) CreateIfAbsent(conversation domain.Conversation) (domain.Conversation, bool, error) {
	key := ConversationKey(conversation.ID)
	for attempt := 1; ; attempt++ {
		stored, created := conversation, false
		err := c.db.Update(func(txn *badger.Txn) error {
			existing, err := readDocument(txn, key, DecodeConversation)
			if err == nil {
				stored = existing
				return nil
			}
			if !stderrors.Is(err, errors.ErrNotFound) {
				return err
			}
			if err = writeDocument(txn, key, fromConversation(conversation)); err != nil {
				return err
			}
			for _, p := range conversation.Participants {
				if err = txn.Set(participantKey(p, conversation.ID), nil); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
		if stderrors.Is(err, badger.ErrConflict) && attempt < maxCreateAttempts {
			c.log.Debug("Conversation creation conflict, retrying", "conversation", conversation.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Conversation{}, false, fmt.Errorf("create conversation %s: %w", conversation.ID, err)
		}
		return stored, created, nil
	}
}

func (c ConversationRepository) Get(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = readDocument(txn, ConversationKey(id), DecodeConversation)
		return err
	})
	return conversation, err
}

// ListByParticipant walks the participant index of user.
// Results are in index order; callers sort them.
func (c ConversationRepository) ListByParticipant(user domain.UserID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := participantPrefix(user)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := domain.ConversationID(it.Item().Key()[len(prefix):])
			conversation, err := readDocument(txn, ConversationKey(id), DecodeConversation)
			if stderrors.Is(err, errors.ErrNotFound) {
				c.log.Warn("Dangling participant index entry", "user", user, "conversation", id)
				continue
			}
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	return conversations, err
}
