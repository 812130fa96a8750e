package repositories

import (
	"talkstream/domain"
	"talkstream/feed"
)

// ConversationsOf selects the conversations user participates in.
func ConversationsOf(user domain.UserID) feed.Query[domain.Conversation] {
	return feed.Query[domain.Conversation]{
		Name:   "conversations:participant=" + string(user),
		Prefix: ConversationPrefix(),
		Match: func(c domain.Conversation) bool {
			return c.HasParticipant(user)
		},
	}
}

// MessagesOf selects the messages of a conversation in ordering-key order.
func MessagesOf(id domain.ConversationID) feed.Query[domain.Message] {
	return feed.Query[domain.Message]{
		Name:   "messages:conversation=" + string(id),
		Prefix: MessagePrefix(id),
	}
}

func AllUsers() feed.Query[domain.User] {
	return feed.Query[domain.User]{
		Name:   "users:all",
		Prefix: UserPrefix(),
	}
}
