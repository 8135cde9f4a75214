package main

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/middleware"
	"github.com/yldrmabdullah/shopguard/policy"
	"github.com/yldrmabdullah/shopguard/sanitize"
	"go.uber.org/zap"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// apiResponse is the envelope every JSON endpoint answers with.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type server struct {
	engine  *shopguard.Engine
	logger  *zap.Logger
	metrics http.Handler
}

// routes builds the full handler tree: security headers outermost, then
// optional bearer verification so throttling can key by user, then the mux.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignin)
	mux.HandleFunc("GET /api/auth/validate", s.handleValidate)
	mux.Handle("GET /api/auth/user",
		middleware.RequireStrict(s.engine, s.engine, s.logger)(http.HandlerFunc(s.handleUser)))
	mux.HandleFunc("POST /api/security/check", s.handleThreatCheck)
	mux.HandleFunc("POST /api/security/password", s.handlePasswordCheck)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	throttle := middleware.Throttle(s.engine, middleware.RateLimitOptions{
		Request: s.engine.RateLimitOptions(),
		Logger:  s.logger,
	})
	identify := middleware.OptionalAuth(s.engine, s.logger)
	return middleware.SecurityHeaders()(identify(throttle(mux)))
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req shopguard.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.engine.Signup(middleware.WithRequestContext(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Message: "User registered successfully", Data: res})
}

func (s *server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req shopguard.SigninRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.engine.Signin(middleware.WithRequestContext(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Login successful", Data: res})
}

// handleValidate answers whether the bearer token verifies. It never fails.
func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	valid := false
	if ok && strings.TrimSpace(raw) != "" {
		_, err := s.engine.VerifyToken(middleware.WithRequestContext(r), strings.TrimSpace(raw))
		valid = err == nil
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Token validation complete", Data: valid})
}

func (s *server) handleUser(w http.ResponseWriter, r *http.Request) {
	profile, ok := middleware.ProfileFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "User info retrieved", Data: profile})
}

type threatCheckRequest struct {
	Input string `json:"input"`
}

type threatCheckResponse struct {
	Safe       bool     `json:"safe"`
	Categories []string `json:"categories,omitempty"`
	sanitize.ThreatSignal
}

func (s *server) handleThreatCheck(w http.ResponseWriter, r *http.Request) {
	var req threatCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sig := s.engine.Classify(middleware.WithRequestContext(r), req.Input)
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "Input classified",
		Data:    threatCheckResponse{Safe: !sig.Any(), Categories: sig.Categories(), ThreatSignal: sig},
	})
}

type passwordCheckRequest struct {
	Password string `json:"password"`
}

type passwordCheckResponse struct {
	Valid      bool               `json:"valid"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Messages   []string           `json:"messages,omitempty"`
}

func (s *server) handlePasswordCheck(w http.ResponseWriter, r *http.Request) {
	var req passwordCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.engine.ValidatePassword(req.Password)
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "Password evaluated",
		Data:    passwordCheckResponse{Valid: res.Valid, Violations: res.Violations, Messages: res.Messages()},
	})
}

// writeError maps engine errors onto HTTP statuses. Credential failures
// share one message so responses do not reveal which check failed.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var policyErr *shopguard.PolicyError
	var lockedErr *shopguard.AccountLockedError

	switch {
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: err.Error(), Data: policyErr.Violations})
	case errors.Is(err, shopguard.ErrPasswordMismatch),
		errors.Is(err, shopguard.ErrInvalidFormat),
		errors.Is(err, shopguard.ErrValidationFailed):
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: err.Error()})
	case errors.Is(err, shopguard.ErrAccountExists):
		writeJSON(w, http.StatusConflict, apiResponse{Message: "Email already registered"})
	case errors.As(err, &lockedErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(lockedErr.Remaining.Seconds()))))
		writeJSON(w, http.StatusLocked, apiResponse{Message: err.Error()})
	case errors.Is(err, shopguard.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "Invalid email or password"})
	case errors.Is(err, shopguard.ErrLockoutUnavailable):
		s.logger.Error("lockout backend unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Message: "Service temporarily unavailable"})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "Internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
