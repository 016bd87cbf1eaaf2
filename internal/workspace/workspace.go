// Package workspace provides scoped, single-use temporary directories for
// media ingestion.
//
// A Workspace is owned by exactly one operation. Its directory is removed
// recursively exactly once, on every exit path, when the owner releases it.
package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ccpd/signboard/internal/fault"
)

const dirPrefix = "ws-"

// processStart anchors monotonic readings used in directory names.
var processStart = time.Now()

// Workspace is an exclusively owned directory.
type Workspace struct {
	Dir string

	once sync.Once
	err  error
}

// Release removes the workspace tree. Only the first call deletes; later
// calls return the first result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.Dir); err != nil {
			w.err = fault.Wrap(fault.ErrIO, "release workspace", err)
		}
	})
	return w.err
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// SweepReport summarizes a Sweep run.
type SweepReport struct {
	DeletedDirs int
}

// Manager creates workspaces under a base directory.
type Manager struct {
	baseDir string
	now     func() time.Time
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}
	return &Manager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// BaseDir returns the directory workspaces are created in.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Acquire creates a uniquely named workspace directory. The name combines a
// monotonic clock reading with a random suffix.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.ErrIO, "create workspace base", err)
	}

	name, err := uniqueName()
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, "name workspace", err)
	}

	dir := filepath.Join(m.baseDir, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fault.Wrap(fault.ErrIO, "create workspace", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Scope acquires a workspace, runs fn with it and releases it when fn
// returns or panics. A release failure is joined with fn's error.
func (m *Manager) Scope(fn func(*Workspace) error) (err error) {
	ws, err := m.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			if err == nil {
				err = relErr
			} else {
				err = fmt.Errorf("%w (also: %v)", err, relErr)
			}
		}
	}()
	return fn(ws)
}

// Sweep removes workspace directories older than olderThan. It is meant for
// startup, to collect directories left behind by a killed process.
func (m *Manager) Sweep(olderThan time.Duration) (SweepReport, error) {
	if olderThan <= 0 {
		return SweepReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := SweepReport{}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.baseDir, entry.Name())); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func uniqueName() (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d-%s", dirPrefix, time.Since(processStart).Nanoseconds(), hex.EncodeToString(suffix[:])), nil
}
