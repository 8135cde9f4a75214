package ratelimit

import (
	"net/http"
	"strings"
)

// Options control how Signals are read from a request.
type Options struct {
	// TrustForwardedFor uses the first X-Forwarded-For hop as the remote
	// address. Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool
	// UserHeader names a header carrying the user id when UserID yields none.
	// Set it only behind a gateway that authenticates the caller and
	// overwrites the header. Empty ignores every request header.
	UserHeader string
	// UserID returns the verified user id for r, if any. It takes priority
	// over UserHeader.
	UserID func(r *http.Request) string
}

// SignalsFromRequest extracts identity signals from r.
func SignalsFromRequest(r *http.Request, opts Options) Signals {
	var s Signals
	if opts.UserID != nil {
		s.UserID = opts.UserID(r)
	}
	if s.UserID == "" && opts.UserHeader != "" {
		s.UserID = strings.TrimSpace(r.Header.Get(opts.UserHeader))
	}

	s.RemoteAddr = r.RemoteAddr
	if opts.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				s.RemoteAddr = first
			}
		}
	}
	return s
}
