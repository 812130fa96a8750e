package projection

import (
	"slices"
	"talkstream/domain"
	"talkstream/feed"
)

// Item is one row of a conversation list, joined with the display name of
// the other participant.
type Item struct {
	Conversation     domain.Conversation
	OtherUserID      domain.UserID
	OtherDisplayName string
}

type ItemChange struct {
	Kind feed.Kind
	Item Item
}

// ConversationListUpdate always carries the full ordered list and the rows
// that changed since the previous update.
type ConversationListUpdate struct {
	Items   []Item
	Changes []ItemChange
	Reset   bool
}

// Resolver maps a user to the display name shown in the list.
type Resolver func(domain.UserID) string

type ConversationList struct {
	Owner domain.UserID
	items map[domain.ConversationID]Item
}

func NewConversationList(owner domain.UserID) *ConversationList {
	return &ConversationList{Owner: owner, items: make(map[domain.ConversationID]Item)}
}

// Load replaces the list with docs.
func (l *ConversationList) Load(docs []domain.Conversation, resolve Resolver) ConversationListUpdate {
	l.items = make(map[domain.ConversationID]Item, len(docs))
	changes := make([]ItemChange, 0, len(docs))
	for _, c := range docs {
		item := l.item(c, resolve)
		l.items[c.ID] = item
		changes = append(changes, ItemChange{Kind: feed.Added, Item: item})
	}
	return ConversationListUpdate{Items: l.Items(), Changes: changes, Reset: true}
}

// Apply consumes the changes of one live snapshot.
func (l *ConversationList) Apply(changes []feed.Change[domain.Conversation], resolve Resolver) (ConversationListUpdate, bool) {
	var out []ItemChange
	for _, change := range changes {
		switch change.Kind {
		case feed.Removed:
			if item, ok := l.items[change.Doc.ID]; ok {
				delete(l.items, change.Doc.ID)
				out = append(out, ItemChange{Kind: feed.Removed, Item: item})
			}
		default:
			if c, ok := l.put(change.Doc, resolve); ok {
				out = append(out, c)
			}
		}
	}
	return l.update(out)
}

// Resync diffs the list against a fresh result set.
func (l *ConversationList) Resync(docs []domain.Conversation, resolve Resolver) (ConversationListUpdate, bool) {
	var out []ItemChange
	seen := make(map[domain.ConversationID]struct{}, len(docs))
	for _, c := range docs {
		seen[c.ID] = struct{}{}
		if change, ok := l.put(c, resolve); ok {
			out = append(out, change)
		}
	}
	for id, item := range l.items {
		if _, ok := seen[id]; !ok {
			delete(l.items, id)
			out = append(out, ItemChange{Kind: feed.Removed, Item: item})
		}
	}
	return l.update(out)
}

// Refresh resolves again the rows whose other participant is user.
// Only rows whose display name changed are reported.
func (l *ConversationList) Refresh(user domain.UserID, resolve Resolver) (ConversationListUpdate, bool) {
	var out []ItemChange
	for id, item := range l.items {
		if item.OtherUserID != user {
			continue
		}
		if name := resolve(user); name != item.OtherDisplayName {
			item.OtherDisplayName = name
			l.items[id] = item
			out = append(out, ItemChange{Kind: feed.Modified, Item: item})
		}
	}
	return l.update(out)
}

// Participants returns the other participants currently displayed.
func (l *ConversationList) Participants() map[domain.UserID]struct{} {
	out := make(map[domain.UserID]struct{}, len(l.items))
	for _, item := range l.items {
		out[item.OtherUserID] = struct{}{}
	}
	return out
}

// Items returns the rows in display order.
func (l *ConversationList) Items() []Item {
	items := make([]Item, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b Item) int {
		return domain.CompareByRecency(a.Conversation, b.Conversation)
	})
	return items
}

func (l *ConversationList) put(c domain.Conversation, resolve Resolver) (ItemChange, bool) {
	previous, known := l.items[c.ID]
	if known && sameConversation(previous.Conversation, c) {
		return ItemChange{}, false
	}
	item := l.item(c, resolve)
	l.items[c.ID] = item
	if known {
		return ItemChange{Kind: feed.Modified, Item: item}, true
	}
	return ItemChange{Kind: feed.Added, Item: item}, true
}

func (l *ConversationList) item(c domain.Conversation, resolve Resolver) Item {
	other, _ := c.Other(l.Owner)
	return Item{Conversation: c, OtherUserID: other, OtherDisplayName: resolve(other)}
}

func (l *ConversationList) update(changes []ItemChange) (ConversationListUpdate, bool) {
	if len(changes) == 0 {
		return ConversationListUpdate{}, false
	}
	slices.SortFunc(changes, func(a, b ItemChange) int {
		return domain.CompareByRecency(a.Item.Conversation, b.Item.Conversation)
	})
	return ConversationListUpdate{Items: l.Items(), Changes: changes}, true
}

func sameConversation(a, b domain.Conversation) bool {
	if a.ID != b.ID || a.LastMessage != b.LastMessage || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if (a.LastMessageTime == nil) != (b.LastMessageTime == nil) {
		return false
	}
	if a.LastMessageTime != nil && *a.LastMessageTime != *b.LastMessageTime {
		return false
	}
	return slices.Equal(a.Participants, b.Participants)
}
