package domain

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPairID(t *testing.T) {
	t.Run("should not depend on argument order", func(t *testing.T) {
		req := require.New(t)
		req.Equal(PairID("alice", "bob"), PairID("bob", "alice"))
	})

	t.Run("should differ between pairs", func(t *testing.T) {
		req := require.New(t)
		req.NotEqual(PairID("alice", "bob"), PairID("alice", "clara"))
		// The separator keeps "ab"+"c" apart from "a"+"bc"
		req.NotEqual(PairID("ab", "c"), PairID("a", "bc"))
	})
}

func TestNewConversation(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	c := NewConversation("bob", "alice", at)

	req.Equal(PairID("alice", "bob"), c.ID)
	req.Equal([]UserID{"alice", "bob"}, c.Participants)
	req.Nil(c.LastMessageTime)
	req.Empty(c.LastMessage)
	req.True(c.HasParticipant("alice"))
	req.False(c.HasParticipant("clara"))

	other, ok := c.Other("alice")
	req.True(ok)
	req.Equal(UserID("bob"), other)
	_, ok = c.Other("clara")
	req.False(ok)
}

func TestConversation_CoversKey(t *testing.T) {
	req := require.New(t)
	c := NewConversation("alice", "bob", time.Now())
	req.False(c.CoversKey(1))

	key := OrderingKey(10)
	c.LastMessageTime = &key
	req.True(c.CoversKey(9))
	req.True(c.CoversKey(10))
	req.False(c.CoversKey(11))
}

func TestNextOrderingKey(t *testing.T) {
	req := require.New(t)
	now := time.Unix(0, 1_000)

	req.Equal(OrderingKey(1_000), NextOrderingKey(0, now))
	// Clock did not move: strictly increasing anyway
	req.Equal(OrderingKey(1_001), NextOrderingKey(1_000, now))
	// Clock went backwards
	req.Equal(OrderingKey(5_001), NextOrderingKey(5_000, now))
	req.Equal("00000000000000001000", OrderingKey(1_000).String())
	req.Equal(now.UTC(), OrderingKey(1_000).Time())
}

func TestCompareByRecency(t *testing.T) {
	req := require.New(t)
	base := time.Now().UTC()
	k1, k2 := OrderingKey(100), OrderingKey(200)

	old := Conversation{ID: "old", CreatedAt: base, LastMessageTime: &k1}
	recent := Conversation{ID: "recent", CreatedAt: base, LastMessageTime: &k2}
	emptyOld := Conversation{ID: "empty-old", CreatedAt: base}
	emptyNew := Conversation{ID: "empty-new", CreatedAt: base.Add(time.Minute)}

	list := []Conversation{emptyOld, old, emptyNew, recent}
	slices.SortFunc(list, CompareByRecency)

	var ids []ConversationID
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	req.Equal([]ConversationID{"recent", "old", "empty-new", "empty-old"}, ids)
}
