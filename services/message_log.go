package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"log/slog"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/feed"
	"talkstream/observability"
	"talkstream/repositories"

	"github.com/google/uuid"
)

type IMessageLog interface {
	Append(ctx context.Context, caller domain.UserID, id domain.ConversationID, text string) (domain.Message, error)
	Tail(ctx context.Context, caller domain.UserID, id domain.ConversationID) iter.Seq2[domain.Message, error]
	TailFrom(ctx context.Context, caller domain.UserID, id domain.ConversationID, after domain.OrderingKey) iter.Seq2[domain.Message, error]
	History(ctx context.Context, caller domain.UserID, id domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
}

type MessageLog struct {
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	users         repositories.IUserRepository
	denormalizer  *Denormalizer
	feed          feed.Watcher[domain.Message]
	log           *slog.Logger
	metrics       *observability.Metrics
	maxLength     int
}

func NewMessageLog(
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	denormalizer *Denormalizer,
	watcher feed.Watcher[domain.Message],
	log *slog.Logger,
	metrics *observability.Metrics,
	maxLength int,
) *MessageLog {
	return &MessageLog{
		conversations: conversations,
		messages:      messages,
		users:         users,
		denormalizer:  denormalizer,
		feed:          watcher,
		log:           log,
		metrics:       metrics,
		maxLength:     maxLength,
	}
}

// Append validates text and commits it as the next message of the conversation.
// Nothing is written when validation, existence or membership checks fail.
func (l *MessageLog) Append(ctx context.Context, caller domain.UserID, id domain.ConversationID, text string) (domain.Message, error) {
	text, err := domain.ValidateMessageText(text, l.maxLength)
	if err != nil {
		return domain.Message{}, err
	}
	if err = domain.ValidateID(caller); err != nil {
		return domain.Message{}, err
	}
	if err = domain.ValidateID(id); err != nil {
		return domain.Message{}, err
	}

	msg, err := l.denormalizer.Commit(ctx, domain.MessageDraft{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: id,
		SenderID:       caller,
		SenderName:     l.senderName(caller),
		Text:           text,
	})
	if err != nil {
		return domain.Message{}, err
	}
	l.metrics.MessageAppended()
	l.log.DebugContext(ctx, "Message appended", "conversation", id, "message", msg.ID, "key", msg.Timestamp)
	return msg, nil
}

func (l *MessageLog) senderName(id domain.UserID) string {
	user, err := l.users.Get(id)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			l.log.Warn("Sender profile unreadable", "user", id, "error", err)
		}
		return domain.UnknownUserName
	}
	return user.DisplayName
}

// Tail yields every message of the conversation in ordering-key order,
// then keeps yielding new ones as they commit.
func (l *MessageLog) Tail(ctx context.Context, caller domain.UserID, id domain.ConversationID) iter.Seq2[domain.Message, error] {
	return l.TailFrom(ctx, caller, id, 0)
}

// TailFrom is Tail restricted to keys greater than after. Resuming with the
// key of the last message received continues without gap or duplicate.
// The sequence ends with an error wrapping errors.ErrWatchInterrupted when
// the underlying watch breaks, and silently when ctx is done.
func (l *MessageLog) TailFrom(ctx context.Context, caller domain.UserID, id domain.ConversationID, after domain.OrderingKey) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		if _, err := l.participantOf(caller, id); err != nil {
			yield(domain.Message{}, err)
			return
		}
		stream := l.feed.Watch(repositories.MessagesOf(id))
		defer stream.Close()

		last := after
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-stream.Events():
				if !ok {
					return
				}
				if ev.Err != nil {
					yield(domain.Message{}, ev.Err)
					return
				}
				for _, msg := range appended(ev.Snapshot, last) {
					if !yield(msg, nil) {
						return
					}
					last = msg.Timestamp
				}
			}
		}
	}
}

func appended(snapshot feed.Snapshot[domain.Message], after domain.OrderingKey) []domain.Message {
	var out []domain.Message
	if snapshot.Initial {
		for _, msg := range snapshot.Docs {
			if msg.Timestamp > after {
				out = append(out, msg)
			}
		}
		return out
	}
	for _, change := range snapshot.Changes {
		if change.Kind == feed.Added && change.Doc.Timestamp > after {
			out = append(out, change.Doc)
		}
	}
	return out
}

// History pages backwards through the conversation, newest first.
func (l *MessageLog) History(_ context.Context, caller domain.UserID, id domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	if _, err := l.participantOf(caller, id); err != nil {
		return nil, nil, err
	}
	return l.messages.GetMessages(id, cursor)
}

func (l *MessageLog) participantOf(caller domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Conversation{}, err
	}
	conversation, err := l.conversations.Get(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(caller) {
		return domain.Conversation{}, fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, caller, id)
	}
	return conversation, nil
}
