package middleware

import (
	"context"
	"net/http"

	"github.com/yldrmabdullah/shopguard"
	"go.uber.org/zap"
)

// ProfileLookup loads the current state of an account. *shopguard.Engine implements it.
type ProfileLookup interface {
	Profile(ctx context.Context, userID string) (shopguard.UserProfile, error)
}

type profileContextKey struct{}

// ProfileFromContext returns the profile loaded by RequireStrict.
func ProfileFromContext(ctx context.Context) (shopguard.UserProfile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(shopguard.UserProfile)
	return p, ok
}

// RequireStrict is Guard plus a store lookup: tokens of deleted or deactivated
// accounts are refused even before they expire.
func RequireStrict(verifier TokenVerifier, profiles ProfileLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := Guard(verifier, logger)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vt, _ := ClaimsFromContext(r.Context())
			if profiles == nil || vt == nil {
				unauthorized(w, "unauthorized")
				return
			}
			p, err := profiles.Profile(r.Context(), vt.UserID)
			if err != nil {
				logger.Debug("account lookup rejected token", zap.String("user_id", vt.UserID), zap.Error(err))
				unauthorized(w, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), profileContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}
