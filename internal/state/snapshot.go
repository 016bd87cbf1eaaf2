// Package state persists the dashboard state and the ingest log in SQLite.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ccpd/signboard/internal/dashboard"
)

const DefaultMaxStateBytes = 4 << 20 // 4 MiB

// Store reads and writes the single dashboard snapshot row.
type Store struct {
	db            *sql.DB
	maxStateBytes int
	now           func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		maxStateBytes: DefaultMaxStateBytes,
		now:           time.Now,
	}
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snap dashboard.Snapshot) error {
	raw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal dashboard state: %w", err)
	}
	if len(raw) > s.maxStateBytes {
		return fmt.Errorf("dashboard state exceeds max size (%d bytes)", s.maxStateBytes)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dashboard_snapshot(id, state, version, updated_at)
VALUES(1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  state = excluded.state,
  version = excluded.version,
  updated_at = excluded.updated_at;
`, string(raw), int64(snap.Version), now)
	if err != nil {
		return fmt.Errorf("upsert dashboard snapshot: %w", err)
	}
	return nil
}

// Load returns the stored state. found is false when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (st dashboard.State, found bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, "SELECT state FROM dashboard_snapshot WHERE id = 1;").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return dashboard.State{}, false, nil
	}
	if err != nil {
		return dashboard.State{}, false, fmt.Errorf("read dashboard snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return dashboard.State{}, false, fmt.Errorf("decode dashboard snapshot: %w", err)
	}
	return st, true, nil
}
