// Package ratelimit derives throttling keys from request identity signals and
// enforces per-key request budgets.
//
// Key resolution is a pure function that never fails: an authenticated user
// id wins, then a resolvable remote address, then a fixed sentinel. The
// limiters only consume keys; they never inspect requests.
//
// # Window semantics
//
// [RedisLimiter] is a fixed window: INCR plus EXPIRE on the first hit, key
// prefix "rl:". [MemoryLimiter] is a token bucket per key.
package ratelimit

import (
	"net"
	"net/netip"
	"strings"
)

const (
	// AnonymousKey is the user resolver fallback when no signal resolves.
	AnonymousKey = "anonymous"
	// UnknownKey is the IP resolver fallback when the address does not resolve.
	UnknownKey = "unknown"
)

// Signals are the identity hints available for one request.
type Signals struct {
	UserID     string
	RemoteAddr string
}

// Resolver maps Signals to a throttling key.
type Resolver func(Signals) string

// UserKey resolves to the user id, else the remote IP, else AnonymousKey.
func UserKey(s Signals) string {
	if id := strings.TrimSpace(s.UserID); id != "" {
		return id
	}
	if ip, ok := resolveAddr(s.RemoteAddr); ok {
		return ip
	}
	return AnonymousKey
}

// IPKey resolves to the remote IP, else UnknownKey.
func IPKey(s Signals) string {
	if ip, ok := resolveAddr(s.RemoteAddr); ok {
		return ip
	}
	return UnknownKey
}

// ResolveKey is the default resolver used by the engine and middleware.
func ResolveKey(s Signals) string {
	return UserKey(s)
}

// resolveAddr accepts "ip" or "ip:port" (with brackets for IPv6) and returns
// the canonical IP text.
func resolveAddr(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip, err := netip.ParseAddr(strings.Trim(addr, "[]"))
	if err != nil {
		return "", false
	}
	return ip.Unmap().String(), true
}
