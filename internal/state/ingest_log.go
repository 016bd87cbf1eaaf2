package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ccpd/signboard/internal/ingest"
)

// IngestLog appends processed sources to the ingest_log table.
type IngestLog struct {
	db *sql.DB
}

func NewIngestLog(db *sql.DB) *IngestLog {
	return &IngestLog{db: db}
}

var _ ingest.Recorder = (*IngestLog)(nil)

// RecordIngest implements ingest.Recorder.
func (l *IngestLog) RecordIngest(ctx context.Context, rec ingest.Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	reused := 0
	if rec.Reused {
		reused = 1
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO ingest_log(id, digest, source, item_type, pages, reused, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), rec.Digest, rec.Source, rec.Type, rec.Pages, reused, rec.Duration.Milliseconds(), at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert ingest_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *IngestLog) Recent(ctx context.Context, limit int) ([]ingest.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT digest, source, item_type, pages, reused, duration_ms, created_at
FROM ingest_log
ORDER BY created_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest_log: %w", err)
	}
	defer rows.Close()

	var out []ingest.Record
	for rows.Next() {
		var (
			rec       ingest.Record
			reused    int
			durMS     int64
			createdAt string
		)
		if err := rows.Scan(&rec.Digest, &rec.Source, &rec.Type, &rec.Pages, &reused, &durMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ingest_log: %w", err)
		}
		rec.Reused = reused != 0
		rec.Duration = time.Duration(durMS) * time.Millisecond
		if rec.At, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse ingest_log created_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest_log: %w", err)
	}
	return out, nil
}
