package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StateStore implements driven.StateStore over the state table: one JSON
// payload per (namespace, account) pair. Writes upsert; deletes of missing
// rows succeed.
type StateStore struct {
	db *DB
}

// NewStateStore creates a StateStore over db.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// ReadJSON loads the payload for (namespace, account) into v. The boolean
// reports whether a record existed.
func (s *StateStore) ReadJSON(ctx context.Context, namespace, account string, v any) (bool, error) {
	var payload []byte
	err := s.db.Reader.QueryRowContext(ctx,
		`SELECT payload FROM state WHERE namespace = ? AND account = ?`,
		namespace, account,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state %s/%s: %w", namespace, account, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("decode state %s/%s: %w", namespace, account, err)
	}
	return true, nil
}

// WriteJSON stores v as the payload for (namespace, account), replacing any
// previous record.
func (s *StateStore) WriteJSON(ctx context.Context, namespace, account string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s/%s: %w", namespace, account, err)
	}
	_, err = s.db.Writer.ExecContext(ctx,
		`INSERT INTO state (namespace, account, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, account) DO UPDATE SET
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		namespace, account, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write state %s/%s: %w", namespace, account, err)
	}
	return nil
}

// Delete removes the record for (namespace, account). Missing records are
// not an error.
func (s *StateStore) Delete(ctx context.Context, namespace, account string) error {
	_, err := s.db.Writer.ExecContext(ctx,
		`DELETE FROM state WHERE namespace = ? AND account = ?`,
		namespace, account,
	)
	if err != nil {
		return fmt.Errorf("delete state %s/%s: %w", namespace, account, err)
	}
	return nil
}
