package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ccpd/signboard/internal/dashboard"
)

// Saver persists a dashboard snapshot.
type Saver interface {
	Save(ctx context.Context, snap dashboard.Snapshot) error
}

// Snapshotter writes dashboard snapshots in the background. Only the newest
// scheduled snapshot is written; older pending ones are dropped. Write
// failures are logged and passed to the error hook, never returned to the
// code that scheduled them.
type Snapshotter struct {
	saver   Saver
	logger  *slog.Logger
	timeout time.Duration
	onError func(error)

	mu      sync.Mutex
	pending *dashboard.Snapshot
	wake    chan struct{}
	saved   chan uint64
}

// SnapshotterOption configures a Snapshotter.
type SnapshotterOption func(*Snapshotter)

// WithErrorHook is called after every failed write.
func WithErrorHook(fn func(error)) SnapshotterOption {
	return func(s *Snapshotter) { s.onError = fn }
}

// WithSaveTimeout bounds a single write.
func WithSaveTimeout(d time.Duration) SnapshotterOption {
	return func(s *Snapshotter) { s.timeout = d }
}

func NewSnapshotter(saver Saver, logger *slog.Logger, opts ...SnapshotterOption) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Snapshotter{
		saver:   saver,
		logger:  logger,
		timeout: 10 * time.Second,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues snap for writing and returns immediately.
func (s *Snapshotter) Schedule(snap dashboard.Snapshot) {
	s.mu.Lock()
	if s.pending == nil || snap.Version >= s.pending.Version {
		s.pending = &snap
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run writes scheduled snapshots until ctx is done, then writes whatever is
// still pending once more.
func (s *Snapshotter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.flush(context.WithoutCancel(ctx))
			return
		case <-s.wake:
			s.flush(ctx)
		}
	}
}

func (s *Snapshotter) flush(ctx context.Context) {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.saver.Save(sctx, *snap); err != nil {
		s.logger.Error("dashboard snapshot failed", "version", snap.Version, "error", err)
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	s.logger.Debug("dashboard snapshot saved", "version", snap.Version)
	if s.saved != nil {
		s.saved <- snap.Version
	}
}
