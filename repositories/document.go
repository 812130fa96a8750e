package repositories

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"talkstream/domain"
	"talkstream/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// Key layout
//
//	user:{uid}                          user document
//	conv:{conversation}                 conversation document
//	idx:participant:{uid}:{conversation} empty value, one per participant
//	seq:{conversation}                  last ordering key, 8 bytes big endian
//	msg:{conversation}:{key padded 20}  message document
const (
	userPrefix             = "user:"
	conversationPrefix     = "conv:"
	participantIndexPrefix = "idx:participant:"
	sequencePrefix         = "seq:"
	messagePrefix          = "msg:"
)

func UserPrefix() []byte { return []byte(userPrefix) }

func UserKey(id domain.UserID) []byte { return []byte(userPrefix + string(id)) }

func ConversationPrefix() []byte { return []byte(conversationPrefix) }

func ConversationKey(id domain.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}

func participantPrefix(user domain.UserID) []byte {
	return []byte(participantIndexPrefix + string(user) + ":")
}

func participantKey(user domain.UserID, id domain.ConversationID) []byte {
	return append(participantPrefix(user), string(id)...)
}

func sequenceKey(id domain.ConversationID) []byte {
	return []byte(sequencePrefix + string(id))
}

// MessagePrefix is the prefix of every message of a conversation.
// Keys under it sort by ordering key.
func MessagePrefix(id domain.ConversationID) []byte {
	return []byte(messagePrefix + string(id) + ":")
}

func messageKey(id domain.ConversationID, k domain.OrderingKey) []byte {
	return append(MessagePrefix(id), k.String()...)
}

type userDocument struct {
	UID         string `cbor:"uid"`
	DisplayName string `cbor:"displayName"`
	Email       string `cbor:"email"`
	PhoneNumber string `cbor:"phoneNumber"`
	CreatedAt   int64  `cbor:"createdAt"`
}

type conversationDocument struct {
	ID              string   `cbor:"id"`
	Participants    []string `cbor:"participants"`
	CreatedAt       int64    `cbor:"createdAt"`
	LastMessage     string   `cbor:"lastMessage"`
	LastMessageTime *uint64  `cbor:"lastMessageTime"`
}

type messageDocument struct {
	ID         string `cbor:"id"`
	SenderID   string `cbor:"senderId"`
	SenderName string `cbor:"senderName"`
	Text       string `cbor:"text"`
	Timestamp  uint64 `cbor:"timestamp"`
}

func fromUser(u domain.User) userDocument {
	return userDocument{
		UID:         string(u.ID),
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt.UnixNano(),
	}
}

func (d userDocument) toUser() domain.User {
	return domain.User{
		ID:          domain.UserID(d.UID),
		DisplayName: d.DisplayName,
		Email:       d.Email,
		PhoneNumber: d.PhoneNumber,
		CreatedAt:   time.Unix(0, d.CreatedAt).UTC(),
	}
}

func fromConversation(c domain.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:          string(c.ID),
		CreatedAt:   c.CreatedAt.UnixNano(),
		LastMessage: c.LastMessage,
	}
	for _, p := range c.Participants {
		doc.Participants = append(doc.Participants, string(p))
	}
	if c.LastMessageTime != nil {
		k := uint64(*c.LastMessageTime)
		doc.LastMessageTime = &k
	}
	return doc
}

func (d conversationDocument) toConversation() domain.Conversation {
	c := domain.Conversation{
		ID:          domain.ConversationID(d.ID),
		CreatedAt:   time.Unix(0, d.CreatedAt).UTC(),
		LastMessage: d.LastMessage,
	}
	for _, p := range d.Participants {
		c.Participants = append(c.Participants, domain.UserID(p))
	}
	if d.LastMessageTime != nil {
		k := domain.OrderingKey(*d.LastMessageTime)
		c.LastMessageTime = &k
	}
	return c
}

func fromMessage(m domain.Message) messageDocument {
	return messageDocument{
		ID:         string(m.ID),
		SenderID:   string(m.SenderID),
		SenderName: m.SenderName,
		Text:       m.Text,
		Timestamp:  uint64(m.Timestamp),
	}
}

func (d messageDocument) toMessage(id domain.ConversationID) domain.Message {
	return domain.Message{
		ID:             domain.MessageID(d.ID),
		ConversationID: id,
		SenderID:       domain.UserID(d.SenderID),
		SenderName:     d.SenderName,
		Text:           d.Text,
		Timestamp:      domain.OrderingKey(d.Timestamp),
	}
}

// DecodeUser decodes a value stored under UserPrefix.
func DecodeUser(_, value []byte) (domain.User, error) {
	var doc userDocument
	if err := cbor.Unmarshal(value, &doc); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return doc.toUser(), nil
}

// DecodeConversation decodes a value stored under ConversationPrefix.
func DecodeConversation(_, value []byte) (domain.Conversation, error) {
	var doc conversationDocument
	if err := cbor.Unmarshal(value, &doc); err != nil {
		return domain.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return doc.toConversation(), nil
}

// DecodeMessage decodes a value stored under MessagePrefix.
// The owning conversation is read from the key.
func DecodeMessage(key, value []byte) (domain.Message, error) {
	rest, ok := bytes.CutPrefix(key, []byte(messagePrefix))
	if !ok {
		return domain.Message{}, fmt.Errorf("decode message: unexpected key %q", key)
	}
	sep := bytes.LastIndexByte(rest, ':')
	if sep < 0 {
		return domain.Message{}, fmt.Errorf("decode message: unexpected key %q", key)
	}
	var doc messageDocument
	if err := cbor.Unmarshal(value, &doc); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return doc.toMessage(domain.ConversationID(rest[:sep])), nil
}

// readDocument reads key inside txn and hands its value to decode.
// A missing key is reported as errors.ErrNotFound.
func readDocument[T any](txn *badger.Txn, key []byte, decode func(key, value []byte) (T, error)) (T, error) {
	var out T
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return out, fmt.Errorf("%w: %s", errors.ErrNotFound, key)
	}
	if err != nil {
		return out, err
	}
	err = item.Value(func(value []byte) error {
		out, err = decode(key, value)
		return err
	})
	return out, err
}

func writeDocument(txn *badger.Txn, key []byte, doc any) error {
	data, err := cbor.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}
