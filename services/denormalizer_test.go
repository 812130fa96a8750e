package services

import (
	"context"
	stderrors "errors"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/mocks"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLastWriteWins(t *testing.T) {
	req := require.New(t)
	newer := domain.OrderingKey(200)
	conversation := domain.Conversation{ID: "c", LastMessage: "newer", LastMessageTime: &newer}

	// When an older message is applied
	updated, changed, err := LastWriteWins(conversation, domain.Message{Text: "older", Timestamp: 100})
	req.NoError(err)
	req.False(changed)
	req.Equal("newer", updated.LastMessage)

	// When a newer message is applied
	updated, changed, err = LastWriteWins(conversation, domain.Message{Text: "newest", Timestamp: 300})
	req.NoError(err)
	req.True(changed)
	req.Equal("newest", updated.LastMessage)
	req.Equal(domain.OrderingKey(300), *updated.LastMessageTime)
	req.Equal(domain.OrderingKey(200), *conversation.LastMessageTime)
}

func TestDenormalizer_Commit(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxAttempts: 5}
	draft := domain.MessageDraft{ID: "m1", ConversationID: "c", SenderID: "alice", Text: "hi"}

	t.Run("should retry write conflicts", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		ctrl := gomock.NewController(t)
		repository := mocks.NewMockIMessageRepository(ctrl)
		denormalizer := NewDenormalizer(repository, f.log, nil, policy)

		gomock.InOrder(
			repository.EXPECT().Append(draft, gomock.Any()).Return(domain.Message{}, badger.ErrConflict).Times(2),
			repository.EXPECT().Append(draft, gomock.Any()).Return(domain.Message{ID: "m1", Timestamp: 7}, nil),
		)

		msg, err := denormalizer.Commit(ctx, draft)

		req.NoError(err)
		req.Equal(domain.OrderingKey(7), msg.Timestamp)
	})

	t.Run("should give up after the last attempt", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		ctrl := gomock.NewController(t)
		repository := mocks.NewMockIMessageRepository(ctrl)
		denormalizer := NewDenormalizer(repository, f.log, nil, policy)

		repository.EXPECT().Append(draft, gomock.Any()).Return(domain.Message{}, badger.ErrConflict).Times(policy.MaxAttempts)

		_, err := denormalizer.Commit(ctx, draft)

		req.ErrorIs(err, badger.ErrConflict)
	})

	t.Run("should not retry business errors", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		ctrl := gomock.NewController(t)
		repository := mocks.NewMockIMessageRepository(ctrl)
		denormalizer := NewDenormalizer(repository, f.log, nil, policy)

		repository.EXPECT().Append(draft, gomock.Any()).Return(domain.Message{}, errors.ErrNotParticipant).Times(1)

		_, err := denormalizer.Commit(ctx, draft)

		req.ErrorIs(err, errors.ErrNotParticipant)
	})

	t.Run("should commit the message alone when the summary fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		c := f.conversation(t, "alice", "bob")
		_, err := f.messageLog.Append(ctx, "alice", c.ID, "first")
		req.NoError(err)
		f.denormalizer.WithRule(func(domain.Conversation, domain.Message) (domain.Conversation, bool, error) {
			return domain.Conversation{}, false, stderrors.New("summary store unavailable")
		})

		msg, err := f.messageLog.Append(ctx, "alice", c.ID, "second")

		// Then the message is there and the summary still shows the first one
		req.NoError(err)
		req.Equal("second", msg.Text)
		messages, _, err := f.messageLog.History(ctx, "bob", c.ID, nil)
		req.NoError(err)
		req.Len(messages, 2)
		stored, err := f.conversations.Get(c.ID)
		req.NoError(err)
		req.Equal("first", stored.LastMessage)
		req.Less(*stored.LastMessageTime, msg.Timestamp)
	})

	t.Run("should survive caller cancellation", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		c := f.conversation(t, "alice", "bob")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		msg, err := f.messageLog.Append(cancelled, "alice", c.ID, "late")

		req.NoError(err)
		req.Equal("late", msg.Text)
	})
}
