package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/yldrmabdullah/shopguard"
	"go.uber.org/zap"
)

// TokenVerifier checks a raw bearer token. *shopguard.Engine implements it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*shopguard.VerifiedToken, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the token verified by Guard for this request.
func ClaimsFromContext(ctx context.Context) (*shopguard.VerifiedToken, bool) {
	vt, ok := ctx.Value(claimsContextKey{}).(*shopguard.VerifiedToken)
	return vt, ok && vt != nil
}

// UserIDFromRequest returns the verified user id, or "".
func UserIDFromRequest(r *http.Request) string {
	if vt, ok := ClaimsFromContext(r.Context()); ok {
		return vt.UserID
	}
	return ""
}

// Guard rejects requests without a valid bearer token with 401 and stores the
// verified claims in the request context otherwise. The client IP and user
// agent are attached to the context for audit events.
func Guard(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				unauthorized(w, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "unauthorized")
				return
			}

			ctx := WithRequestContext(r)
			vt, err := verifier.VerifyToken(ctx, token)
			if err != nil {
				logger.Debug("bearer token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				if errors.Is(err, shopguard.ErrTokenExpired) {
					unauthorized(w, "token expired")
					return
				}
				unauthorized(w, "unauthorized")
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, vt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth stores the verified claims in the request context when a valid
// bearer token is present and passes every request on. Place it before
// Throttle so verified callers are keyed by user id.
func OptionalAuth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if verifier == nil || !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithRequestContext(r)
			vt, err := verifier.VerifyToken(ctx, token)
			if err != nil {
				logger.Debug("optional bearer token ignored", zap.String("path", r.URL.Path), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, claimsContextKey{}, vt)))
		})
	}
}

// WithRequestContext returns r's context carrying the client address and user
// agent that audit events record.
func WithRequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host := clientHost(r.RemoteAddr); host != "" {
		ctx = shopguard.WithClientIP(ctx, host)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = shopguard.WithUserAgent(ctx, ua)
	}
	return ctx
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="shopguard"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
