//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"talkstream/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName returns the type name of the worker, for logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// UserReader is the point read used to join display names into views.
type UserReader interface {
	Get(ctx context.Context, id domain.UserID) (domain.User, error)
}

// ConversationReader resolves a conversation on behalf of a participant.
type ConversationReader interface {
	Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (domain.Conversation, error)
}
