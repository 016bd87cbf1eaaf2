package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ccpd/signboard/internal/ingest"
	"github.com/ccpd/signboard/internal/storage"
)

func TestIngestLogRecordAndRecent(t *testing.T) {
	t.Parallel()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "signboard.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	l := NewIngestLog(db)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, rec := range []ingest.Record{
		{Digest: "aaa", Source: "http://x/a.pdf", Type: ingest.TypePDF, Pages: 3, Duration: 1500 * time.Millisecond, At: base},
		{Digest: "aaa", Source: "http://x/a.pdf", Type: ingest.TypePDF, Pages: 3, Reused: true, At: base.Add(time.Minute)},
	} {
		if err := l.RecordIngest(context.Background(), rec); err != nil {
			t.Fatalf("RecordIngest %d: %v", i, err)
		}
	}

	recs, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if !recs[0].Reused || recs[1].Reused {
		t.Fatalf("expected newest first, got %+v", recs)
	}
	if recs[1].Duration != 1500*time.Millisecond || recs[1].Pages != 3 {
		t.Fatalf("unexpected first record: %+v", recs[1])
	}
	if !recs[1].At.Equal(base) {
		t.Fatalf("At = %v, want %v", recs[1].At, base)
	}
}
