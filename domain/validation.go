package domain

import (
	"fmt"
	"strings"
	"talkstream/errors"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxMessageLength = 1000
	MaxDisplayNameLength    = 64
)

var validate = validator.New()

// ValidateMessageText trims text and checks it is non-empty and at most
// maxLength runes long. The trimmed text is what gets stored.
func ValidateMessageText(text string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if err := validate.Var(trimmed, fmt.Sprintf("required,max=%d", maxLength)); err != nil {
		return "", fmt.Errorf("%w: message text: %v", errors.ErrValidation, err)
	}
	return trimmed, nil
}

func ValidateDisplayName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := validate.Var(trimmed, fmt.Sprintf("required,max=%d", MaxDisplayNameLength)); err != nil {
		return "", fmt.Errorf("%w: display name: %v", errors.ErrValidation, err)
	}
	return trimmed, nil
}

// ValidateID rejects empty identifiers and identifiers containing the key separator.
func ValidateID[T ~string](id T) error {
	if err := validate.Var(string(id), "required,excludes=:"); err != nil {
		return fmt.Errorf("%w: identifier %q: %v", errors.ErrValidation, string(id), err)
	}
	return nil
}
