package services

import (
	"context"
	"sync"
	"talkstream/domain"
	"talkstream/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectory_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the same conversation from both sides", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.register(t, "alice", "bob")

		first, err := f.directory.GetOrCreate(ctx, "alice", "bob")
		req.NoError(err)
		second, err := f.directory.GetOrCreate(ctx, "bob", "alice")
		req.NoError(err)

		req.Equal(first.ID, second.ID)
		req.ElementsMatch([]domain.UserID{"alice", "bob"}, first.Participants)
		req.Empty(first.LastMessage)
		req.Nil(first.LastMessageTime)
	})

	t.Run("should converge under concurrent first contact", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.register(t, "alice", "bob")

		// Given both users starting the conversation at the same time, many times
		var wg sync.WaitGroup
		results := make(chan domain.ConversationID, 20)
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				caller, other := domain.UserID("alice"), domain.UserID("bob")
				if i%2 == 1 {
					caller, other = other, caller
				}
				c, err := f.directory.GetOrCreate(ctx, caller, other)
				if err != nil {
					t.Errorf("get or create: %v", err)
					return
				}
				results <- c.ID
			}()
		}
		wg.Wait()
		close(results)

		// Then a single conversation exists
		ids := map[domain.ConversationID]struct{}{}
		for id := range results {
			ids[id] = struct{}{}
		}
		req.Len(ids, 1)
		list, err := f.directory.ListFor(ctx, "alice")
		req.NoError(err)
		req.Len(list, 1)
	})

	t.Run("should find a conversation stored under another identifier", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.register(t, "alice", "bob")
		legacy := domain.Conversation{
			ID:           "legacy-1",
			Participants: []domain.UserID{"bob", "alice"},
			CreatedAt:    time.Now().UTC(),
		}
		_, _, err := f.conversations.CreateIfAbsent(legacy)
		req.NoError(err)

		found, err := f.directory.GetOrCreate(ctx, "alice", "bob")

		req.NoError(err)
		req.Equal(domain.ConversationID("legacy-1"), found.ID)
	})

	t.Run("should reject invalid pairs", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.register(t, "alice")

		_, err := f.directory.GetOrCreate(ctx, "alice", "alice")
		req.ErrorIs(err, errors.ErrValidation)
		_, err = f.directory.GetOrCreate(ctx, "alice", "")
		req.ErrorIs(err, errors.ErrValidation)
		_, err = f.directory.GetOrCreate(ctx, "alice", "ghost")
		req.ErrorIs(err, errors.ErrNotFound)

		list, err := f.directory.ListFor(ctx, "alice")
		req.NoError(err)
		req.Empty(list)
	})
}

func TestDirectory_ListFor(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	withBob := f.conversation(t, "alice", "bob")
	withClara := f.conversation(t, "alice", "clara")
	withDave := f.conversation(t, "alice", "dave")
	f.conversation(t, "bob", "clara")

	// When clara then bob get a message, dave none
	_, err := f.messageLog.Append(ctx, "alice", withClara.ID, "hello clara")
	req.NoError(err)
	_, err = f.messageLog.Append(ctx, "bob", withBob.ID, "hello alice")
	req.NoError(err)

	list, err := f.directory.ListFor(ctx, "alice")
	req.NoError(err)

	var ids []domain.ConversationID
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	req.Equal([]domain.ConversationID{withBob.ID, withClara.ID, withDave.ID}, ids)
	req.Equal("hello alice", list[0].LastMessage)
	req.Nil(list[2].LastMessageTime)
}

func TestDirectory_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	c := f.conversation(t, "alice", "bob")

	got, err := f.directory.Get(ctx, "bob", c.ID)
	req.NoError(err)
	req.Equal(c.ID, got.ID)

	_, err = f.directory.Get(ctx, "mallory", c.ID)
	req.ErrorIs(err, errors.ErrNotParticipant)
	_, err = f.directory.Get(ctx, "alice", "missing")
	req.ErrorIs(err, errors.ErrNotFound)
}
