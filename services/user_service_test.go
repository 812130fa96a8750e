package services

import (
	"context"
	"talkstream/domain"
	"talkstream/errors"
	"talkstream/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestUserService_Rename(t *testing.T) {
	ctx := context.Background()

	t.Run("should only let the owner rename", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repository := mocks.NewMockIUserRepository(ctrl)
		service := NewUserService(repository, newFixture(t).log)

		repository.EXPECT().Rename(gomock.Any(), gomock.Any()).Times(0)

		_, err := service.Rename(ctx, "mallory", "alice", "Evil Alice")
		req.ErrorIs(err, errors.ErrPermissionDenied)
	})

	t.Run("should store the trimmed name", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repository := mocks.NewMockIUserRepository(ctrl)
		service := NewUserService(repository, newFixture(t).log)

		repository.EXPECT().Rename(domain.UserID("alice"), "Alice").
			Return(domain.User{ID: "alice", DisplayName: "Alice"}, nil)

		user, err := service.Rename(ctx, "alice", "alice", "  Alice ")
		req.NoError(err)
		req.Equal("Alice", user.DisplayName)

		_, err = service.Rename(ctx, "alice", "alice", "  ")
		req.ErrorIs(err, errors.ErrValidation)
	})
}

func TestUserService_ListContacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	for _, u := range []domain.User{
		{ID: "u1", DisplayName: "zoe"},
		{ID: "u2", DisplayName: "Adam"},
		{ID: "u3", DisplayName: "me"},
		{ID: "u4", DisplayName: "bob"},
	} {
		_, err := f.userService.Register(ctx, u)
		req.NoError(err)
	}

	contacts, err := f.userService.ListContacts(ctx, "u3")
	req.NoError(err)

	var names []string
	for _, c := range contacts {
		names = append(names, c.DisplayName)
	}
	req.Equal([]string{"Adam", "bob", "zoe"}, names)
	req.False(contacts[0].CreatedAt.IsZero())
}
