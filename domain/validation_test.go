package domain

import (
	"strings"
	"talkstream/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateMessageText(t *testing.T) {
	tests := []struct {
		description string
		text        string
		want        string
		wantErr     bool
	}{
		{"Should trim surrounding spaces", "  hi  ", "hi", false},
		{"Should fail on empty text", "", "", true},
		{"Should fail on blank text", " \n\t ", "", true},
		{"Should accept the maximum length", strings.Repeat("a", 1000), strings.Repeat("a", 1000), false},
		{"Should count runes, not bytes", strings.Repeat("é", 1000), strings.Repeat("é", 1000), false},
		{"Should fail above the maximum length", strings.Repeat("a", 1001), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			got, err := ValidateMessageText(tt.text, DefaultMaxMessageLength)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	req := require.New(t)

	name, err := ValidateDisplayName("  Alice ")
	req.NoError(err)
	req.Equal("Alice", name)

	_, err = ValidateDisplayName("   ")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = ValidateDisplayName(strings.Repeat("x", MaxDisplayNameLength+1))
	req.ErrorIs(err, errors.ErrValidation)
}

func TestValidateID(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateID(UserID("alice")))
	req.ErrorIs(ValidateID(UserID("")), errors.ErrValidation)
	req.ErrorIs(ValidateID(ConversationID("a:b")), errors.ErrValidation)
}
