// Package domain contains core concepts of the messaging system.
// This file defines Message records and their ordering rules.
// Messages are immutable once committed.
package domain

import (
	"fmt"
	"time"
)

type MessageID string

// OrderingKey is assigned by the store when a message commits.
// It is the commit wall clock in Unix nanoseconds, bumped to previous+1
// when the clock did not advance, so keys are strictly increasing inside
// a conversation and still read as a server timestamp across conversations.
type OrderingKey uint64

// NextOrderingKey returns the key following prev for a commit observed at now.
func NextOrderingKey(prev OrderingKey, now time.Time) OrderingKey {
	candidate := OrderingKey(max(now.UnixNano(), 0))
	if candidate <= prev {
		return prev + 1
	}
	return candidate
}

func (k OrderingKey) Time() time.Time {
	return time.Unix(0, int64(k)).UTC()
}

// String is zero padded so lexical order equals numeric order.
func (k OrderingKey) String() string {
	return fmt.Sprintf("%020d", uint64(k))
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	SenderName     string
	Text           string
	Timestamp      OrderingKey
}

// MessageDraft is a validated message waiting for its ordering key.
type MessageDraft struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	SenderName     string
	Text           string
}
