//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"
	"talkstream/domain"
	"talkstream/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// SummaryRule computes the conversation summary after msg commits.
// changed is false when the stored summary must be left untouched.
type SummaryRule func(conversation domain.Conversation, msg domain.Message) (updated domain.Conversation, changed bool, err error)

type IMessageRepository interface {
	Append(draft domain.MessageDraft, rule SummaryRule) (domain.Message, error)
	GetMessages(id domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	now           func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages, now: time.Now}
}

// Append commits draft in a single transaction:
//  1. the conversation must exist and the sender must be one of its participants,
//  2. the ordering key is read from seq:{conversation}, advanced and written back,
//  3. the message is stored under msg:{conversation}:{key padded to 20 digits},
//  4. when rule is not nil, the summary it returns is written in the same commit.
//
// Two appends racing on one conversation both touch its sequence key, so one of
// them fails with badger.ErrConflict and must be re-run. Commit order therefore
// matches ordering-key order without any in-process lock.
// A rule failure aborts the whole transaction and is reported wrapped in
// errors.ErrDenormalizationFailure.
func (m MessageRepository) Append(draft domain.MessageDraft, rule SummaryRule) (domain.Message, error) {
	var msg domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		conversation, err := readDocument(txn, ConversationKey(draft.ConversationID), DecodeConversation)
		if err != nil {
			return err
		}
		if !conversation.HasParticipant(draft.SenderID) {
			return fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, draft.SenderID, draft.ConversationID)
		}

		prev, err := readSequence(txn, draft.ConversationID)
		if err != nil {
			return err
		}
		key := domain.NextOrderingKey(prev, m.now())
		if err = txn.Set(sequenceKey(draft.ConversationID), binary.BigEndian.AppendUint64(nil, uint64(key))); err != nil {
			return err
		}

		msg = domain.Message{
			ID:             draft.ID,
			ConversationID: draft.ConversationID,
			SenderID:       draft.SenderID,
			SenderName:     draft.SenderName,
			Text:           draft.Text,
			Timestamp:      key,
		}
		if err = writeDocument(txn, messageKey(draft.ConversationID, key), fromMessage(msg)); err != nil {
			return err
		}

		if rule == nil {
			return nil
		}
		updated, changed, err := rule(conversation, msg)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrDenormalizationFailure, err)
		}
		if !changed {
			return nil
		}
		return writeDocument(txn, ConversationKey(draft.ConversationID), fromConversation(updated))
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func readSequence(txn *badger.Txn, id domain.ConversationID) (domain.OrderingKey, error) {
	item, err := txn.Get(sequenceKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var key domain.OrderingKey
	err = item.Value(func(value []byte) error {
		if len(value) != 8 {
			return fmt.Errorf("corrupted sequence for %s: %d bytes", id, len(value))
		}
		key = domain.OrderingKey(binary.BigEndian.Uint64(value))
		return nil
	})
	return key, err
}

// GetMessages pages backwards through a conversation, newest first.
// The cursor is the padded ordering key of the last message returned;
// a nil cursor starts from the most recent message.
// It stops collecting messages once the configured limitMessages is reached.
func (m MessageRepository) GetMessages(id domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := MessagePrefix(id)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the greatest padded key, the iterator lands on the newest message
			seekKey = append(prefix, "99999999999999999999"...)
		default:
			seekKey = append(prefix, *cursor...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				msg, err := DecodeMessage(item.Key(), value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return nil, nil, nil
	}
	return messages, &lastKey, nil
}
