package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/repositories"
	"time"

	"github.com/samber/lo"
)

type IUserService interface {
	Register(ctx context.Context, user domain.User) (domain.User, error)
	Rename(ctx context.Context, caller, target domain.UserID, displayName string) (domain.User, error)
	Get(ctx context.Context, id domain.UserID) (domain.User, error)
	ListContacts(ctx context.Context, caller domain.UserID) ([]domain.User, error)
}

// UserService keeps the profiles published by the authentication provider.
type UserService struct {
	repository repositories.IUserRepository
	log        *slog.Logger
	now        func() time.Time
}

func NewUserService(repository repositories.IUserRepository, log *slog.Logger) *UserService {
	return &UserService{repository: repository, log: log, now: time.Now}
}

func (s *UserService) Register(ctx context.Context, user domain.User) (domain.User, error) {
	if err := domain.ValidateID(user.ID); err != nil {
		return domain.User{}, err
	}
	name, err := domain.ValidateDisplayName(user.DisplayName)
	if err != nil {
		return domain.User{}, err
	}
	user.DisplayName = name
	user.Email = strings.TrimSpace(user.Email)
	user.PhoneNumber = strings.TrimSpace(user.PhoneNumber)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	stored, err := s.repository.Upsert(user)
	if err != nil {
		return domain.User{}, err
	}
	s.log.InfoContext(ctx, "User registered", "user", stored.ID)
	return stored, nil
}

// Rename changes a display name. Only the owner may rename a profile.
func (s *UserService) Rename(ctx context.Context, caller, target domain.UserID, displayName string) (domain.User, error) {
	if caller != target {
		return domain.User{}, fmt.Errorf("%w: %s cannot rename %s", errors.ErrPermissionDenied, caller, target)
	}
	name, err := domain.ValidateDisplayName(displayName)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repository.Rename(target, name)
	if err != nil {
		return domain.User{}, err
	}
	s.log.InfoContext(ctx, "User renamed", "user", target)
	return user, nil
}

func (s *UserService) Get(_ context.Context, id domain.UserID) (domain.User, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.User{}, err
	}
	return s.repository.Get(id)
}

// ListContacts returns every other user sorted by display name.
func (s *UserService) ListContacts(_ context.Context, caller domain.UserID) ([]domain.User, error) {
	users, err := s.repository.List()
	if err != nil {
		return nil, err
	}
	contacts := lo.Filter(users, func(u domain.User, _ int) bool {
		return u.ID != caller
	})
	slices.SortFunc(contacts, func(a, b domain.User) int {
		return cmp.Or(
			strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)),
			strings.Compare(string(a.ID), string(b.ID)),
		)
	})
	return contacts, nil
}
