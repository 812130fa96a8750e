//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"talkstream/domain"
	"talkstream/errors"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	Upsert(user domain.User) (domain.User, error)
	Get(id domain.UserID) (domain.User, error)
	Rename(id domain.UserID, displayName string) (domain.User, error)
	List() ([]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// Upsert stores the profile published by the authentication provider.
// An existing profile keeps its creation date.
func (u UserRepository) Upsert(user domain.User) (domain.User, error) {
	err := u.db.Update(func(txn *badger.Txn) error {
		existing, err := readDocument(txn, UserKey(user.ID), DecodeUser)
		switch {
		case err == nil:
			user.CreatedAt = existing.CreatedAt
		case !stderrors.Is(err, errors.ErrNotFound):
			return err
		}
		return writeDocument(txn, UserKey(user.ID), fromUser(user))
	})
	return user, err
}

func (u UserRepository) Get(id domain.UserID) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readDocument(txn, UserKey(id), DecodeUser)
		return err
	})
	return user, err
}

// Rename only touches the display name.
func (u UserRepository) Rename(id domain.UserID, displayName string) (domain.User, error) {
	var user domain.User
	err := u.db.Update(func(txn *badger.Txn) error {
		var err error
		if user, err = readDocument(txn, UserKey(id), DecodeUser); err != nil {
			return err
		}
		user.DisplayName = displayName
		return writeDocument(txn, UserKey(id), fromUser(user))
	})
	return user, err
}

func (u UserRepository) List() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := UserPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				user, err := DecodeUser(item.Key(), value)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}
