package session

import (
	"context"
	"log/slog"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/storage"
)

// Authorization is the outcome of resolving a session into an access
// decision. Allowed is nil while resolution is pending; consumers must treat
// nil as "not yet determined", never as a rejection.
type Authorization struct {
	Allowed *bool
	Role    domain.Role
	Err     error
}

// Pending returns the not-yet-determined authorization state.
func Pending() Authorization {
	return Authorization{}
}

func decided(allowed bool) *bool {
	return &allowed
}

// Resolver resolves a session into an Authorization. A super_admin claim
// embedded in the token is trusted immediately without a profile lookup;
// otherwise the durable profile's stored role decides. A failed lookup yields
// Allowed=false with the error surfaced, never a silent allow.
type Resolver struct {
	users  storage.UserStore
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given profile store.
func NewResolver(users storage.UserStore, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, logger: logger}
}

// Resolve is invoked on every session establishment and refresh, not just the
// first.
func (r *Resolver) Resolve(ctx context.Context, sess *Session) Authorization {
	if sess == nil {
		return Authorization{Allowed: decided(false)}
	}

	if sess.Claims.Role == domain.RoleSuperAdmin {
		return Authorization{Allowed: decided(true), Role: domain.RoleSuperAdmin}
	}

	user, err := r.users.Get(ctx, sess.UserID)
	if err != nil {
		r.logger.Warn("profile lookup failed during authorization",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return Authorization{Allowed: decided(false), Err: err}
	}

	return Authorization{Allowed: decided(true), Role: user.Role}
}
