package errors

import "fmt"

var (
	ErrValidation             = fmt.Errorf("validation error")
	ErrNotParticipant         = fmt.Errorf("user is not a participant of the conversation")
	ErrNotFound               = fmt.Errorf("not found")
	ErrPermissionDenied       = fmt.Errorf("permission denied")
	ErrWatchInterrupted       = fmt.Errorf("watch interrupted")
	ErrSubscriptionDegraded   = fmt.Errorf("subscription degraded")
	ErrSubscriptionClosed     = fmt.Errorf("subscription closed")
	ErrDenormalizationFailure = fmt.Errorf("denormalization failure")
	ErrWorkerPanic            = fmt.Errorf("worker panic")
)
