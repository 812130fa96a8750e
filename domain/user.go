package domain

import "time"

type UserID string

// UnknownUserName is displayed when a participant profile cannot be read.
const UnknownUserName = "Unknown User"

// User is the profile published by the authentication provider.
// The identifier never changes; the display name is edited by its owner.
type User struct {
	ID          UserID
	DisplayName string
	Email       string
	PhoneNumber string
	CreatedAt   time.Time
}
