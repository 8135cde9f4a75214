package shopguard

import (
	"context"
	"errors"
)

const (
	auditEventSigninSuccess      = "signin_success"
	auditEventSigninFailure      = "signin_failure"
	auditEventSigninLocked       = "signin_locked"
	auditEventLockoutTripped     = "lockout_tripped"
	auditEventLockoutCleared     = "lockout_cleared"
	auditEventSignupSuccess      = "signup_success"
	auditEventSignupRejected     = "signup_rejected"
	auditEventSignupDuplicate    = "signup_duplicate"
	auditEventTokenRejected      = "token_rejected"
	auditEventThreatDetected     = "threat_detected"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventPasswordRehashed   = "password_rehashed"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenInvalid       AuditErrorCode = "invalid_token"
	auditErrValidation         AuditErrorCode = "validation_failed"
	auditErrInvalidFormat      AuditErrorCode = "invalid_format"
	auditErrPasswordMismatch   AuditErrorCode = "password_mismatch"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	account string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Account:   account,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrInvalidFormat):
		return auditErrInvalidFormat
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidation
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrLockoutUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
