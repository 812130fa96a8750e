// Package projection builds the views delivered to subscribers from feed snapshots.
// Handles ordering, deduplication and resynchronization diffs.
// Does not watch the store or deliver anything itself.
package projection

import (
	"slices"
	"talkstream/domain"
	"talkstream/feed"
)

// TimelineUpdate is either the whole timeline (Reset) or the messages
// appended since the previous update, in ordering-key order.
type TimelineUpdate struct {
	Messages []domain.Message
	Reset    bool
}

// Timeline holds the messages of one conversation as seen by a subscriber.
type Timeline struct {
	Conversation domain.ConversationID
	Messages     []domain.Message
}

func NewTimeline(id domain.ConversationID) *Timeline {
	return &Timeline{Conversation: id}
}

// Load replaces the timeline with docs.
func (t *Timeline) Load(docs []domain.Message) TimelineUpdate {
	t.Messages = slices.Clone(docs)
	return TimelineUpdate{Messages: slices.Clone(docs), Reset: true}
}

// Apply consumes a live snapshot. Appends past the last known key become a
// delta; anything else (edits, removals, late keys) resynchronizes against
// the full result set.
func (t *Timeline) Apply(snapshot feed.Snapshot[domain.Message]) (TimelineUpdate, bool) {
	last := t.lastKey()
	var appended []domain.Message
	for _, change := range snapshot.Changes {
		if change.Kind != feed.Added || change.Doc.Timestamp <= last {
			return t.Resync(snapshot.Docs)
		}
		appended = append(appended, change.Doc)
		last = change.Doc.Timestamp
	}
	if len(appended) == 0 {
		return TimelineUpdate{}, false
	}
	t.Messages = append(t.Messages, appended...)
	return TimelineUpdate{Messages: appended}, true
}

// Resync compares the timeline with a fresh result set. When the known
// messages are a prefix of docs only the missing tail is reported.
func (t *Timeline) Resync(docs []domain.Message) (TimelineUpdate, bool) {
	if !isPrefix(t.Messages, docs) {
		return t.Load(docs), true
	}
	missing := slices.Clone(docs[len(t.Messages):])
	if len(missing) == 0 {
		return TimelineUpdate{}, false
	}
	t.Messages = append(t.Messages, missing...)
	return TimelineUpdate{Messages: missing}, true
}

func (t *Timeline) lastKey() domain.OrderingKey {
	if len(t.Messages) == 0 {
		return 0
	}
	return t.Messages[len(t.Messages)-1].Timestamp
}

func isPrefix(prefix, docs []domain.Message) bool {
	if len(prefix) > len(docs) {
		return false
	}
	for i, msg := range prefix {
		if msg.ID != docs[i].ID || msg.Timestamp != docs[i].Timestamp {
			return false
		}
	}
	return true
}
