package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/observability"
	"talkstream/repositories"
	"time"

	"github.com/samber/lo"
)

type IDirectory interface {
	GetOrCreate(ctx context.Context, caller, other domain.UserID) (domain.Conversation, error)
	ListFor(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
	Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (domain.Conversation, error)
}

// Directory guarantees a single conversation per pair of users.
type Directory struct {
	conversations repositories.IConversationRepository
	users         repositories.IUserRepository
	log           *slog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDirectory(conversations repositories.IConversationRepository, users repositories.IUserRepository,
	log *slog.Logger, metrics *observability.Metrics) *Directory {
	return &Directory{
		conversations: conversations,
		users:         users,
		log:           log,
		metrics:       metrics,
		now:           time.Now,
	}
}

// GetOrCreate returns the conversation between caller and other, creating it
// when none exists. The identifier is derived from the pair, so concurrent
// callers converge on one record. Conversations stored under another
// identifier are found through the caller's participant index first.
func (d *Directory) GetOrCreate(ctx context.Context, caller, other domain.UserID) (domain.Conversation, error) {
	if err := domain.ValidateID(caller); err != nil {
		return domain.Conversation{}, err
	}
	if err := domain.ValidateID(other); err != nil {
		return domain.Conversation{}, err
	}
	if caller == other {
		return domain.Conversation{}, fmt.Errorf("%w: a conversation needs two distinct users", errors.ErrValidation)
	}
	if _, err := d.users.Get(other); err != nil {
		return domain.Conversation{}, fmt.Errorf("user %s: %w", other, err)
	}

	existing, err := d.conversations.Get(domain.PairID(caller, other))
	if err == nil {
		d.metrics.ConversationLookup("existing")
		return existing, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return domain.Conversation{}, err
	}

	conversations, err := d.conversations.ListByParticipant(caller)
	if err != nil {
		return domain.Conversation{}, err
	}
	if found, ok := lo.Find(conversations, func(c domain.Conversation) bool {
		return c.HasParticipant(other)
	}); ok {
		d.metrics.ConversationLookup("existing")
		return found, nil
	}

	conversation, created, err := d.conversations.CreateIfAbsent(domain.NewConversation(caller, other, d.now().UTC()))
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		d.metrics.ConversationLookup("created")
		d.log.InfoContext(ctx, "Conversation created", "conversation", conversation.ID, "by", caller)
	} else {
		d.metrics.ConversationLookup("existing")
	}
	return conversation, nil
}

// ListFor returns the conversations of user, most recent message first,
// conversations without messages last.
func (d *Directory) ListFor(_ context.Context, user domain.UserID) ([]domain.Conversation, error) {
	if err := domain.ValidateID(user); err != nil {
		return nil, err
	}
	conversations, err := d.conversations.ListByParticipant(user)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(conversations, domain.CompareByRecency)
	return conversations, nil
}

// Get is restricted to participants.
func (d *Directory) Get(_ context.Context, caller domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Conversation{}, err
	}
	conversation, err := d.conversations.Get(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(caller) {
		return domain.Conversation{}, fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, caller, id)
	}
	return conversation, nil
}
