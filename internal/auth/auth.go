// Package auth implements the credential store: registration,
// authentication, password changes, and the login audit trail.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/storage"
)

// dummyHash is a valid bcrypt hash compared against when the username
// does not exist, so unknown-user and wrong-password attempts take the
// same time and reveal nothing through latency.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type Service struct {
	store  *storage.UserStore
	logger *log.Logger
	now    func() time.Time
}

func New(store *storage.UserStore, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a user, storing only the bcrypt hash of the
// password. The username must be non-empty and untaken; the password
// must pass the minimum policy.
func (s *Service) Register(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, fmt.Errorf("register: %w", core.ErrInvalidCredentials)
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, fmt.Errorf("register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return core.User{}, err
	}

	s.recordEvent(ctx, user.ID, core.ActionRegister, true)
	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, user.ID, log.FieldUsername, user.Username)
	return user, nil
}

// Authenticate verifies a username/password pair and returns the user
// identity on match. Both outcomes are recorded in the login history.
// Failures never reveal whether the username or the password was
// wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	user, hash, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Burn a comparison so the miss costs as much as a mismatch.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return core.User{}, fmt.Errorf("authenticate: %w", core.ErrInvalidCredentials)
		}
		return core.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.recordEvent(ctx, user.ID, core.ActionLogin, false)
		return core.User{}, fmt.Errorf("authenticate: %w", core.ErrInvalidCredentials)
	}

	s.recordEvent(ctx, user.ID, core.ActionLogin, true)
	s.logger.InfoContext(ctx, "User authenticated", log.FieldUserID, user.ID, log.FieldUsername, user.Username)
	return user, nil
}

// ChangePassword re-verifies the old password before overwriting the
// stored hash.
func (s *Service) ChangePassword(ctx context.Context, user core.User, oldPassword, newPassword string) error {
	_, hash, err := s.store.GetUserByUsername(ctx, user.Username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("change password: %w", core.ErrInvalidCredentials)
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)); err != nil {
		s.recordEvent(ctx, user.ID, core.ActionPasswordChange, false)
		return fmt.Errorf("change password: %w", core.ErrInvalidCredentials)
	}

	if err := core.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePasswordHash(ctx, user.ID, string(newHash)); err != nil {
		return err
	}

	s.recordEvent(ctx, user.ID, core.ActionPasswordChange, true)
	s.logger.InfoContext(ctx, "Password changed", log.FieldUserID, user.ID)
	return nil
}

// LoginHistory returns the user's login events, most recent first. A
// limit of 0 returns everything.
func (s *Service) LoginHistory(ctx context.Context, user core.User, limit int) ([]core.LoginEvent, error) {
	return s.store.ListLoginEvents(ctx, user.ID, limit)
}

// recordEvent appends to the audit trail. A failed append must not
// turn a successful authentication into an error, so it is only
// logged.
func (s *Service) recordEvent(ctx context.Context, userID int64, action string, success bool) {
	ev := core.LoginEvent{
		UserID:    userID,
		Action:    action,
		Success:   success,
		Timestamp: s.now(),
	}
	if err := s.store.AppendLoginEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record login event",
			log.FieldUserID, userID, log.FieldOperation, action, log.FieldError, err)
	}
}
