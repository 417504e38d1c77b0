package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finbook/internal/core"
)

// UserStore persists user identities and the append-only login
// history. It backs the credential store and nothing else.
type UserStore struct {
	db *sql.DB
}

func OpenUserStore(dbPath string) (*UserStore, error) {
	db, err := openDB(dbPath, "users")
	if err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user. The hash is the only credential
// material ever stored; plaintext passwords never reach this layer.
func (s *UserStore) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("create user: %w", core.ErrDuplicateUser)
		}
		return core.User{}, storeErr("create user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, storeErr("create user id", err)
	}

	return core.User{ID: id, Username: username, CreatedAt: now}, nil
}

// GetUserByUsername returns the user and its stored password hash.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (core.User, string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)

	var u core.User
	var hash string
	if err := row.Scan(&u.ID, &u.Username, &hash, &u.CreatedAt); err != nil {
		return core.User{}, "", storeErr("get user by username", err)
	}
	return u, hash, nil
}

// GetUser returns the user with the given id.
func (s *UserStore) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE id = ?",
		id,
	)

	var u core.User
	if err := row.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
		return core.User{}, storeErr("get user", err)
	}
	return u, nil
}

// UpdatePasswordHash overwrites the stored hash for a user.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?",
		passwordHash, userID,
	)
	if err != nil {
		return storeErr("update password hash", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update password hash", err)
	}
	if n == 0 {
		return fmt.Errorf("update password hash: %w", core.ErrNotFound)
	}
	return nil
}

// AppendLoginEvent records one authentication attempt. Events are
// append-only; there is no update or delete path.
func (s *UserStore) AppendLoginEvent(ctx context.Context, ev core.LoginEvent) error {
	success := 0
	if ev.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO login_history (user_id, action, success, timestamp) VALUES (?, ?, ?, ?)",
		ev.UserID, ev.Action, success, ev.Timestamp,
	)
	if err != nil {
		return storeErr("append login event", err)
	}
	return nil
}

// ListLoginEvents returns a user's login history, most recent first.
// A limit of 0 returns the full history.
func (s *UserStore) ListLoginEvents(ctx context.Context, userID int64, limit int) ([]core.LoginEvent, error) {
	query := "SELECT id, user_id, action, success, timestamp FROM login_history WHERE user_id = ? ORDER BY timestamp DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list login events", err)
	}
	defer rows.Close()

	var events []core.LoginEvent
	for rows.Next() {
		var ev core.LoginEvent
		var success int
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Action, &success, &ev.Timestamp); err != nil {
			return nil, storeErr("scan login event", err)
		}
		ev.Success = success != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list login events", err)
	}
	return events, nil
}
