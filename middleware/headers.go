package middleware

import (
	"net/http"
	"strings"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' https://unpkg.com; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

const permissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=(), " +
	"usb=(), magnetometer=(), gyroscope=(), speaker=()"

// noStorePrefixes are path fragments whose responses must never be cached.
var noStorePrefixes = []string{"/api/auth/", "/api/orders/"}

// SecurityHeaders sets the browser hardening headers on every response and
// disables caching for credential and order endpoints.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("X-Permitted-Cross-Domain-Policies", "none")

			for _, p := range noStorePrefixes {
				if strings.Contains(r.URL.Path, p) {
					h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
					h.Set("Pragma", "no-cache")
					h.Set("Expires", "0")
					break
				}
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}
