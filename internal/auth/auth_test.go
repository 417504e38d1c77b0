package auth

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/storage"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

type AuthTestSuite struct {
	suite.Suite
	store *storage.UserStore
	svc   *Service
	ctx   context.Context
}

func (s *AuthTestSuite) SetupTest() {
	store, err := storage.OpenUserStore(filepath.Join(s.T().TempDir(), "users.db"))
	require.NoError(s.T(), err)
	s.store = store
	s.svc = New(store, quietLogger())
	s.ctx = context.Background()
}

func (s *AuthTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *AuthTestSuite) TestRegisterAndAuthenticate() {
	user, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice", user.Username)

	got, err := s.svc.Authenticate(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, got.ID)
}

func (s *AuthTestSuite) TestRegisterRejectsWeakPassword() {
	_, err := s.svc.Register(s.ctx, "alice", "short1")
	assert.ErrorIs(s.T(), err, core.ErrWeakPassword)

	_, err = s.svc.Register(s.ctx, "alice", "alllettersonly")
	assert.ErrorIs(s.T(), err, core.ErrWeakPassword)
}

func (s *AuthTestSuite) TestRegisterDuplicateUsername() {
	_, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)

	_, err = s.svc.Register(s.ctx, "alice", "another1pw")
	assert.ErrorIs(s.T(), err, core.ErrDuplicateUser)
}

func (s *AuthTestSuite) TestAuthenticateFailuresAreUniform() {
	_, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)

	// Wrong password and unknown username surface the same error.
	_, err = s.svc.Authenticate(s.ctx, "alice", "wrongpass1")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)

	_, err = s.svc.Authenticate(s.ctx, "mallory", "wrongpass1")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)
}

func (s *AuthTestSuite) TestAuthenticateRecordsHistory() {
	user, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)

	_, err = s.svc.Authenticate(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)
	_, err = s.svc.Authenticate(s.ctx, "alice", "wrongpass1")
	require.Error(s.T(), err)

	events, err := s.svc.LoginHistory(s.ctx, user, 0)
	require.NoError(s.T(), err)
	// register + successful login + failed login
	require.Len(s.T(), events, 3)

	// Most recent first: the failed attempt leads.
	assert.Equal(s.T(), core.ActionLogin, events[0].Action)
	assert.False(s.T(), events[0].Success)
	assert.Equal(s.T(), core.ActionLogin, events[1].Action)
	assert.True(s.T(), events[1].Success)
	assert.Equal(s.T(), core.ActionRegister, events[2].Action)
}

func (s *AuthTestSuite) TestLoginHistoryLimit() {
	user, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)
	for i := 0; i < 4; i++ {
		_, err := s.svc.Authenticate(s.ctx, "alice", "hunter22x")
		require.NoError(s.T(), err)
	}

	events, err := s.svc.LoginHistory(s.ctx, user, 2)
	require.NoError(s.T(), err)
	assert.Len(s.T(), events, 2)
}

func (s *AuthTestSuite) TestChangePassword() {
	user, err := s.svc.Register(s.ctx, "alice", "hunter22x")
	require.NoError(s.T(), err)

	err = s.svc.ChangePassword(s.ctx, user, "wrongpass1", "newpass99z")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)

	err = s.svc.ChangePassword(s.ctx, user, "hunter22x", "weak")
	assert.ErrorIs(s.T(), err, core.ErrWeakPassword)

	require.NoError(s.T(), s.svc.ChangePassword(s.ctx, user, "hunter22x", "newpass99z"))

	_, err = s.svc.Authenticate(s.ctx, "alice", "hunter22x")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)
	_, err = s.svc.Authenticate(s.ctx, "alice", "newpass99z")
	assert.NoError(s.T(), err)
}

func TestAuthTestSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
