package projection

import (
	"context"
	stderrors "errors"
	"log/slog"
	"talkstream/contract"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/observability"

	"github.com/dgraph-io/ristretto/v2"
)

// Names memoizes display names for one subscription.
// Entries are dropped when the user watch reports a profile change.
type Names struct {
	cache   *ristretto.Cache[string, string]
	users   contract.UserReader
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewNames(users contract.UserReader, size int64, log *slog.Logger, metrics *observability.Metrics) (*Names, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: max(size*10, 100),
		MaxCost:     max(size, 10),
		BufferItems: 64,
		// Cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Names{cache: cache, users: users, log: log, metrics: metrics}, nil
}

// Resolve returns the display name of id, reading the profile at most once
// until Invalidate. Unknown users read as domain.UnknownUserName; read
// failures are not memoized so the next call retries.
func (n *Names) Resolve(ctx context.Context, id domain.UserID) string {
	if name, ok := n.cache.Get(string(id)); ok {
		n.metrics.NameLookup(true)
		return name
	}
	n.metrics.NameLookup(false)

	name := domain.UnknownUserName
	user, err := n.users.Get(ctx, id)
	switch {
	case err == nil:
		name = user.DisplayName
	case stderrors.Is(err, errors.ErrNotFound):
	default:
		n.log.WarnContext(ctx, "Cannot read user profile", "user", id, "error", err)
		return name
	}
	n.cache.Set(string(id), name, 1)
	n.cache.Wait()
	return name
}

// Resolver binds Resolve to ctx.
func (n *Names) Resolver(ctx context.Context) Resolver {
	return func(id domain.UserID) string {
		return n.Resolve(ctx, id)
	}
}

func (n *Names) Invalidate(id domain.UserID) {
	n.cache.Del(string(id))
}

func (n *Names) Purge() {
	n.cache.Clear()
}

func (n *Names) Close() {
	n.cache.Close()
}
