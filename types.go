package shopguard

import (
	"context"
	"time"
)

// UserProvider is the account store the engine authenticates against.
// Implementations return ErrUserNotFound for unknown accounts and
// ErrAccountExists when CreateUser hits a taken email.
//
// Emails arrive already sanitized (trimmed, lower-cased).
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// UserRecord is an account as stored by a UserProvider.
type UserRecord struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Profile returns the record without its credential.
func (u UserRecord) Profile() UserProfile {
	return UserProfile{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
		Active:    u.Active,
	}
}

// UserProfile is the public view of an account.
type UserProfile struct {
	UserID    string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	LastLogin time.Time `json:"lastLogin,omitempty"`
	Active    bool      `json:"isActive"`
}

// CreateUserInput is passed to UserProvider.CreateUser.
type CreateUserInput struct {
	Email        string
	Name         string
	PasswordHash string
}

// SignupRequest is the input of Engine.Signup.
type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SigninRequest is the input of Engine.Signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by a successful Signup or Signin.
type AuthResult struct {
	Token     string        `json:"token"`
	TokenType string        `json:"type"`
	UserID    string        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	ExpiresIn time.Duration `json:"-"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// TokenTypeBearer is the only token type the engine issues.
const TokenTypeBearer = "Bearer"

// VerifiedToken is the read-only result of Engine.VerifyToken.
type VerifiedToken struct {
	UserID    string
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LockStatus describes one account key.
type LockStatus struct {
	Locked    bool
	Failures  int
	Remaining time.Duration
}

// RateDecision is the outcome of Engine.Allow.
type RateDecision struct {
	Key        string
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}
