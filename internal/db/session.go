package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is the persisted credential and cached identity.
type SessionRecord struct {
	Token     string
	UserID    int64
	Username  string
	CreatedAt time.Time
}

// SaveSession replaces the stored session.
func (s *Store) SaveSession(rec SessionRecord) error {
	if rec.Token == "" || rec.UserID == 0 {
		return fmt.Errorf("save session: token and user id required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM session"); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	createdAt := ""
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.Exec(
		"INSERT INTO session (id, token, user_id, username, created_at) VALUES (1, ?, ?, ?, ?)",
		rec.Token, rec.UserID, rec.Username, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

// LoadSession returns the stored session, or nil when there is none.
func (s *Store) LoadSession() (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt string
	err := s.db.QueryRow("SELECT token, user_id, username, created_at FROM session WHERE id = 1").
		Scan(&rec.Token, &rec.UserID, &rec.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if createdAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
	}
	return &rec, nil
}

func (s *Store) ClearSession() error {
	if _, err := s.db.Exec("DELETE FROM session"); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
