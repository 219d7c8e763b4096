package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
	ErrIdentityTaken = errors.New("provider account already linked")
)

// User is a persisted account. Username is unique across the directory;
// DisplayUsername keeps the casing shown to other users.
type User struct {
	ID              uuid.UUID
	Name            string
	Email           string
	EmailVerified   bool
	Username        string
	DisplayUsername string
	Image           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity links a user to an external provider account.
type Identity struct {
	Provider       string
	ProviderUserID string
}
