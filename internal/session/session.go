// Package session adapts the external identity provider: sign-in/sign-out,
// token claim parsing, the privileged admin channel, and the authorization
// resolver that turns a session into an allow/deny decision.
package session

import (
	"context"
	"errors"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// Sentinel errors for identity operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	// ErrResetTimeout is returned when the administrative password reset
	// call exceeds its deadline.
	ErrResetTimeout = errors.New("password service timed out, please retry")
)

// Claims are the attributes embedded in the session token by the identity
// provider. Role and Name may be absent; a present Role is trusted without a
// database round-trip.
type Claims struct {
	UserID string
	Email  string
	Role   domain.Role
	Name   string
}

// Session is an established identity-provider session.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	Claims       Claims
}

// Provider is the identity-provider surface consumed by the core. The admin
// operations run over a separately authenticated administrative channel and
// are gated server-side to privileged callers.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	// ParseSession validates an access token and returns the session it
	// represents, including embedded claims.
	ParseSession(ctx context.Context, accessToken string) (*Session, error)
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error

	// Admin channel.
	AdminCreateUser(ctx context.Context, email, password string) (userID string, err error)
	AdminSetPassword(ctx context.Context, userID, newPassword string) error
}
