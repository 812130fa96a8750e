package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/observability"
	"talkstream/repositories"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
)

type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 2 * time.Millisecond,
	MaxInterval:     100 * time.Millisecond,
	MaxAttempts:     50,
}

// Denormalizer keeps the conversation summary in step with its message log.
// The summary is staged inside the append transaction, so a reader never sees
// a message the summary does not cover yet.
type Denormalizer struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
	metrics    *observability.Metrics
	rule       repositories.SummaryRule
	policy     RetryPolicy
}

func NewDenormalizer(repository repositories.IMessageRepository, log *slog.Logger, metrics *observability.Metrics, policy RetryPolicy) *Denormalizer {
	return &Denormalizer{
		repository: repository,
		log:        log,
		metrics:    metrics,
		rule:       LastWriteWins,
		policy:     policy,
	}
}

// WithRule replaces the summary rule.
func (d *Denormalizer) WithRule(rule repositories.SummaryRule) *Denormalizer {
	d.rule = rule
	return d
}

// LastWriteWins moves the summary forward to msg, never backwards.
func LastWriteWins(conversation domain.Conversation, msg domain.Message) (domain.Conversation, bool, error) {
	if conversation.CoversKey(msg.Timestamp) {
		return conversation, false, nil
	}
	key := msg.Timestamp
	conversation.LastMessage = msg.Text
	conversation.LastMessageTime = &key
	return conversation, true, nil
}

// Commit appends draft and its summary atomically.
// Write conflicts are retried with backoff. When the summary cannot be
// computed the message is committed alone: the message is never lost and
// the failure stays out of the caller's way.
// Caller cancellation is ignored, an append runs to completion.
func (d *Denormalizer) Commit(ctx context.Context, draft domain.MessageDraft) (domain.Message, error) {
	ctx = context.WithoutCancel(ctx)
	msg, err := d.commit(ctx, draft, d.rule)
	if !stderrors.Is(err, errors.ErrDenormalizationFailure) {
		return msg, err
	}
	d.metrics.DenormalizationFailure()
	d.log.ErrorContext(ctx, "Summary update failed, committing message alone",
		"conversation", draft.ConversationID, "message", draft.ID, "error", err)
	return d.commit(ctx, draft, nil)
}

func (d *Denormalizer) commit(ctx context.Context, draft domain.MessageDraft, rule repositories.SummaryRule) (domain.Message, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.policy.InitialInterval
	b.MaxInterval = d.policy.MaxInterval
	b.MaxElapsedTime = 0
	retries := uint64(max(d.policy.MaxAttempts-1, 0))

	attempt := 0
	operation := func() (domain.Message, error) {
		attempt++
		msg, err := d.repository.Append(draft, rule)
		if stderrors.Is(err, badger.ErrConflict) {
			d.metrics.AppendConflict()
			d.log.DebugContext(ctx, "Append conflict", "conversation", draft.ConversationID, "attempt", attempt)
			return msg, err
		}
		if err != nil {
			return msg, backoff.Permanent(err)
		}
		return msg, nil
	}
	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}
