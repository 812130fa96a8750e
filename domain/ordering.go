package domain

import (
	"cmp"
	"strings"
)

// CompareByRecency orders conversations for a list: most recent message
// first, conversations without messages last, then newest created, then id.
func CompareByRecency(a, b Conversation) int {
	switch {
	case a.LastMessageTime != nil && b.LastMessageTime == nil:
		return -1
	case a.LastMessageTime == nil && b.LastMessageTime != nil:
		return 1
	case a.LastMessageTime != nil && *a.LastMessageTime != *b.LastMessageTime:
		return cmp.Compare(*b.LastMessageTime, *a.LastMessageTime)
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}
