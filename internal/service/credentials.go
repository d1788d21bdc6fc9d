package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/domain"
	pw "github.com/smallbiznis/litshare/internal/password"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

// CredentialStore persists user identities and verifies passwords.
type CredentialStore struct {
	users     repository.UserRepository
	attempts  repository.LoginAttemptStore
	snowflake *snowflake.Node
	cfg       config.Config
	metrics   *telemetry.Metrics
	instrument
}

// NewCredentialStore wires dependencies. attempts may be nil to disable throttling.
func NewCredentialStore(users repository.UserRepository, attempts repository.LoginAttemptStore, node *snowflake.Node, cfg config.Config, events EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{
		users:      users,
		attempts:   attempts,
		snowflake:  node,
		cfg:        cfg,
		metrics:    metrics,
		instrument: newInstrument(logger, events),
	}
}

// Register creates a user and returns its id.
func (s *CredentialStore) Register(ctx context.Context, username, phone, password string) (int64, error) {
	ctx, span := s.startSpan(ctx, "CredentialStore.Register")
	defer span.End()

	username = normalizeIdentifier(username)
	phone = normalizeIdentifier(phone)
	if username == "" || phone == "" {
		return 0, fmt.Errorf("username and phone are required: %w", domain.ErrInvalidInput)
	}
	if err := pw.CheckPolicy(password, s.cfg.PasswordMinLength); err != nil {
		return 0, fmt.Errorf("%v: %w", err, domain.ErrWeakPassword)
	}

	if err := s.ensureUnique(ctx, username, phone); err != nil {
		return 0, fail(span, err)
	}

	hashed, err := pw.Hash(password)
	if err != nil {
		return 0, fail(span, fmt.Errorf("hash password: %w", err))
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Username:     username,
		Phone:        phone,
		PasswordHash: hashed,
	})
	if err != nil {
		// A concurrent registration won the unique index.
		if isConflict(err) {
			return 0, domain.ErrDuplicateUser
		}
		return 0, fail(span, storageErr("create user", err))
	}

	s.metrics.AuthEvent("register", "success")
	s.audit("user.registered", "user_id", created.ID)
	s.publish(ctx, domain.Event{Type: domain.EventUserRegistered, ActorID: created.ID, SubjectID: created.ID})
	return created.ID, nil
}

// ensureUnique rejects a username or phone that matches any existing login
// identifier. Verify accepts either kind, so a username equal to someone
// else's phone could never log in.
func (s *CredentialStore) ensureUnique(ctx context.Context, username, phone string) error {
	for _, identifier := range []string{username, phone} {
		if identifier == "" {
			continue
		}
		if _, err := s.users.GetByUsername(ctx, identifier); err == nil {
			return domain.ErrDuplicateUser
		} else if !isNotFound(err) {
			return storageErr("check username", err)
		}
		if _, err := s.users.GetByPhone(ctx, identifier); err == nil {
			return domain.ErrDuplicateUser
		} else if !isNotFound(err) {
			return storageErr("check phone", err)
		}
	}
	return nil
}

// Verify checks a password for a phone number or username. Unknown identifiers
// still pay for a full argon2 comparison.
func (s *CredentialStore) Verify(ctx context.Context, identifier, password string) (int64, error) {
	ctx, span := s.startSpan(ctx, "CredentialStore.Verify")
	defer span.End()

	key := normalizeIdentifier(identifier)
	if err := s.checkThrottle(ctx, key); err != nil {
		return 0, fail(span, err)
	}

	user, err := s.lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return 0, fail(span, err)
		}
		pw.VerifyDummy(password)
		s.recordFailure(ctx, key)
		return 0, domain.ErrInvalidCredentials
	}

	ok, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		s.recordFailure(ctx, key)
		return 0, domain.ErrInvalidCredentials
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, key); err != nil {
			s.log().Warn("reset login attempts failed", zap.Error(err))
		}
	}
	s.metrics.AuthEvent("verify", "success")
	return user.ID, nil
}

// ChangePassword replaces the password hash after verifying the current password.
func (s *CredentialStore) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	ctx, span := s.startSpan(ctx, "CredentialStore.ChangePassword")
	defer span.End()

	user, err := s.User(ctx, userID)
	if err != nil {
		return fail(span, err)
	}
	ok, err := pw.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return domain.ErrInvalidCredentials
	}
	if err := pw.CheckPolicy(next, s.cfg.PasswordMinLength); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrWeakPassword)
	}
	hashed, err := pw.Hash(next)
	if err != nil {
		return fail(span, fmt.Errorf("hash password: %w", err))
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hashed); err != nil {
		return fail(span, storageErr("update password", err))
	}
	s.audit("user.password_changed", "user_id", userID)
	return nil
}

// User loads a user by id.
func (s *CredentialStore) User(ctx context.Context, userID int64) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, storageErr("load user", err)
	}
	return user, nil
}

// IsPlatformAdmin reports whether the user may use the storage administration routes.
func (s *CredentialStore) IsPlatformAdmin(ctx context.Context, userID int64) (bool, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.cfg.IsPlatformAdmin(user.Username), nil
}

func (s *CredentialStore) lookup(ctx context.Context, identifier string) (domain.User, error) {
	if identifier == "" {
		return domain.User{}, domain.ErrUserNotFound
	}
	user, err := s.users.GetByPhone(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !isNotFound(err) {
		return domain.User{}, storageErr("lookup by phone", err)
	}
	user, err = s.users.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !isNotFound(err) {
		return domain.User{}, storageErr("lookup by username", err)
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *CredentialStore) checkThrottle(ctx context.Context, key string) error {
	if s.attempts == nil || s.cfg.LoginMaxAttempts <= 0 || key == "" {
		return nil
	}
	n, err := s.attempts.Failures(ctx, key)
	if err != nil {
		// Throttling is best effort; an unavailable counter must not block logins.
		s.log().Warn("load login attempts failed", zap.Error(err))
		return nil
	}
	if n >= s.cfg.LoginMaxAttempts {
		s.metrics.AuthEvent("verify", "locked")
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (s *CredentialStore) recordFailure(ctx context.Context, key string) {
	s.metrics.AuthEvent("verify", "failure")
	if s.attempts == nil || s.cfg.LoginMaxAttempts <= 0 || key == "" {
		return
	}
	n, err := s.attempts.RecordFailure(ctx, key, s.cfg.LoginLockout)
	if err != nil {
		s.log().Warn("record login attempt failed", zap.Error(err))
		return
	}
	if n == s.cfg.LoginMaxAttempts {
		s.audit("login.locked", "failures", n)
	}
}

func normalizeIdentifier(value string) string {
	return strings.TrimSpace(value)
}
