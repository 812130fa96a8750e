// Package domain contains core concepts of the messaging system.
// This file defines Conversation records and the participant pair rules.
package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// conversationNamespace scopes the name-based identifiers of pair conversations.
var conversationNamespace = uuid.MustParse("6f1c3b52-3f0e-4d8e-9a57-2b8f0c7d4e11")

// Conversation is a pairwise conversation with its denormalized summary.
// LastMessageTime is nil until the first message is committed.
type Conversation struct {
	ID              ConversationID
	Participants    []UserID
	CreatedAt       time.Time
	LastMessage     string
	LastMessageTime *OrderingKey
}

// PairID derives the identifier of the conversation between a and b.
// The pair is unordered: PairID(a, b) == PairID(b, a).
func PairID(a, b UserID) ConversationID {
	pair := SortedPair(a, b)
	name := strings.Join([]string{string(pair[0]), string(pair[1])}, "\x00")
	return ConversationID(uuid.NewSHA1(conversationNamespace, []byte(name)).String())
}

func SortedPair(a, b UserID) [2]UserID {
	if b < a {
		return [2]UserID{b, a}
	}
	return [2]UserID{a, b}
}

func NewConversation(a, b UserID, createdAt time.Time) Conversation {
	pair := SortedPair(a, b)
	return Conversation{
		ID:           PairID(a, b),
		Participants: pair[:],
		CreatedAt:    createdAt,
	}
}

func (c Conversation) HasParticipant(id UserID) bool {
	return slices.Contains(c.Participants, id)
}

// Other returns the participant that is not id.
// ok is false when id is not a participant.
func (c Conversation) Other(id UserID) (UserID, bool) {
	if !c.HasParticipant(id) {
		return "", false
	}
	for _, p := range c.Participants {
		if p != id {
			return p, true
		}
	}
	return id, true
}

// CoversKey tells if the summary already reflects a message with key k.
func (c Conversation) CoversKey(k OrderingKey) bool {
	return c.LastMessageTime != nil && *c.LastMessageTime >= k
}
