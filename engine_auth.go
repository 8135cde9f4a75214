package shopguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yldrmabdullah/shopguard/password"
	"github.com/yldrmabdullah/shopguard/policy"
	"github.com/yldrmabdullah/shopguard/sanitize"
	"go.uber.org/zap"
)

// Signup creates an account and returns a token for it.
//
// The confirmation must equal the password (ErrPasswordMismatch), the
// password must satisfy every policy rule (*PolicyError), the email must be
// well formed (ErrInvalidFormat) and unused (ErrAccountExists).
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	if e == nil || e.userProvider == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email, err := sanitize.SanitizeEmail(req.Email)
	if err == nil && email == "" {
		err = fmt.Errorf("%w: email is required", ErrInvalidFormat)
	}
	if err != nil {
		return nil, e.signupRejected(ctx, "", err, "invalid_email")
	}

	name := sanitize.SanitizeString(req.Name)
	if name == "" {
		return nil, e.signupRejected(ctx, email, fmt.Errorf("%w: name is required", ErrValidationFailed), "missing_name")
	}
	if e.config.Security.RejectUnsafeNames && e.Classify(ctx, name).Any() {
		return nil, e.signupRejected(ctx, email, fmt.Errorf("%w: name contains unsafe characters", ErrValidationFailed), "unsafe_name")
	}

	if req.Password != req.ConfirmPassword {
		return nil, e.signupRejected(ctx, email, ErrPasswordMismatch, "password_mismatch")
	}
	if res := policy.Validate(req.Password); !res.Valid {
		return nil, e.signupRejected(ctx, email, &PolicyError{Violations: res.Violations}, "password_policy")
	}

	if _, err := e.userProvider.GetUserByEmail(ctx, email); err == nil {
		return nil, e.signupDuplicate(ctx, email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return nil, e.signupRejected(ctx, email, fmt.Errorf("%w: %w", ErrValidationFailed, err), "password_too_long")
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, e.signupDuplicate(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	result, err := e.authResult(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.logger.Info("account created", zap.String("user_id", user.UserID))
	e.emitAudit(ctx, auditEventSignupSuccess, true, user.UserID, email, nil, nil)
	return result, nil
}

func (e *Engine) signupRejected(ctx context.Context, email string, err error, why string) error {
	e.metricInc(MetricSignupRejected)
	e.emitAudit(ctx, auditEventSignupRejected, false, "", email, err, reason(why))
	return err
}

func (e *Engine) signupDuplicate(ctx context.Context, email string) error {
	e.metricInc(MetricSignupDuplicate)
	e.emitAudit(ctx, auditEventSignupDuplicate, false, "", email, ErrAccountExists, nil)
	return ErrAccountExists
}

// Signin authenticates by email and password.
//
// A locked account is refused before the credential is looked at and yields
// *AccountLockedError. Unknown accounts, inactive accounts and wrong
// passwords all yield ErrInvalidCredentials and count towards the lock; the
// failure that trips the lock yields *AccountLockedError. A lockout store
// outage refuses the attempt with ErrLockoutUnavailable.
func (e *Engine) Signin(ctx context.Context, req SigninRequest) (*AuthResult, error) {
	if e == nil || e.userProvider == nil || e.hasher == nil || e.lockout == nil {
		return nil, ErrEngineNotReady
	}

	account, err := sanitize.SanitizeEmail(req.Email)
	if err != nil || account == "" {
		e.metricInc(MetricSigninFailure)
		e.emitAudit(ctx, auditEventSigninFailure, false, "", "", ErrInvalidCredentials, reason("invalid_email"))
		return nil, ErrInvalidCredentials
	}

	status, err := e.LockStatus(ctx, account)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		e.metricInc(MetricSigninLocked)
		lockErr := &AccountLockedError{Remaining: status.Remaining}
		e.emitAudit(ctx, auditEventSigninLocked, false, "", account, lockErr, func() map[string]string {
			return map[string]string{"remaining": status.Remaining.String()}
		})
		return nil, lockErr
	}

	if req.Password == "" {
		e.verifyDummy(req.Password)
		return nil, e.signinFailure(ctx, account, "", "empty_password")
	}

	user, err := e.userProvider.GetUserByEmail(ctx, account)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.verifyDummy(req.Password)
			return nil, e.signinFailure(ctx, account, "", "user_not_found")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		e.verifyDummy(req.Password)
		return nil, e.signinFailure(ctx, account, user.UserID, "account_inactive")
	}

	ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		e.logger.Error("stored credential unreadable", zap.String("user_id", user.UserID), zap.Error(err))
	}
	if err != nil || !ok {
		return nil, e.signinFailure(ctx, account, user.UserID, "password_mismatch")
	}

	if err := e.RecordAuthSuccess(ctx, account); err != nil {
		return nil, err
	}
	if status.Failures > 0 {
		e.emitAudit(ctx, auditEventLockoutCleared, true, user.UserID, account, nil, func() map[string]string {
			return map[string]string{"failures": fmt.Sprint(status.Failures)}
		})
	}
	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, user, req.Password)
	}

	now := e.clock.Now()
	if err := e.userProvider.RecordLogin(ctx, user.UserID, now); err != nil {
		e.logger.Warn("record last login failed", zap.String("user_id", user.UserID), zap.Error(err))
	} else {
		user.LastLogin = now
	}

	result, err := e.authResult(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSigninSuccess)
	e.emitAudit(ctx, auditEventSigninSuccess, true, user.UserID, account, nil, nil)
	return result, nil
}

// verifyDummy runs one verification against a hash no account owns, so a
// refusal that never reaches the stored hash costs the same as a wrong password.
func (e *Engine) verifyDummy(secret string) {
	if e.dummyHash == "" {
		return
	}
	_, _ = e.hasher.Verify(secret, e.dummyHash)
}

// signinFailure counts a failed attempt against account and returns the
// error the caller should see.
func (e *Engine) signinFailure(ctx context.Context, account, userID, why string) error {
	e.metricInc(MetricSigninFailure)
	e.emitAudit(ctx, auditEventSigninFailure, false, userID, account, ErrInvalidCredentials, reason(why))

	status, err := e.RecordAuthFailure(ctx, account)
	if err != nil {
		// Credentials were wrong either way; the outage is already logged.
		return ErrInvalidCredentials
	}
	if status.Locked {
		return &AccountLockedError{Remaining: status.Remaining}
	}
	return ErrInvalidCredentials
}

// upgradeHash re-hashes a verified password with current parameters.
// It is best effort and never fails the signin.
func (e *Engine) upgradeHash(ctx context.Context, user UserRecord, secret string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(secret)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
		e.logger.Warn("password rehash store failed", zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	e.metricInc(MetricPasswordRehashed)
	e.emitAudit(ctx, auditEventPasswordRehashed, true, user.UserID, "", nil, nil)
}

func (e *Engine) authResult(ctx context.Context, user UserRecord) (*AuthResult, error) {
	raw, expiresAt, err := e.IssueToken(ctx, user.UserID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{
		Token:     raw,
		TokenType: TokenTypeBearer,
		UserID:    user.UserID,
		Name:      user.Name,
		Email:     user.Email,
		ExpiresIn: e.TokenTTL(),
		ExpiresAt: expiresAt,
	}, nil
}

// Profile returns the public view of an active account.
func (e *Engine) Profile(ctx context.Context, userID string) (UserProfile, error) {
	if e == nil || e.userProvider == nil {
		return UserProfile{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return UserProfile{}, ErrUserNotFound
	}
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	if !user.Active {
		return UserProfile{}, ErrUserNotFound
	}
	return user.Profile(), nil
}
