package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errDetectUnsupported = errors.New("filesystem detection is unsupported on this platform")

// Mount describes the filesystem backing a path.
type Mount struct {
	// Path is the deepest existing ancestor that was inspected.
	Path string
	// Type is the filesystem name, or a hex magic when the type is unknown.
	Type string
}

// Remote reports whether the mount is a network or userspace share on which
// POSIX locking and atomic rename cannot be relied on.
func (m Mount) Remote() bool {
	return isRemoteFilesystem(m.Type)
}

type detectFunc func(path string) (string, error)

var remoteFilesystems = map[string]struct{}{
	"9p":          {},
	"afpfs":       {},
	"ceph":        {},
	"cifs":        {},
	"fuse.rclone": {},
	"fuse.sshfs":  {},
	"glusterfs":   {},
	"lustre":      {},
	"nfs":         {},
	"smb2":        {},
	"smbfs":       {},
	"webdav":      {},
}

// Inspect reports the filesystem that path lives on (or would live on once
// created). Returns errDetectUnsupported on platforms without statfs.
func Inspect(path string) (Mount, error) {
	return inspectWith(path, detectFilesystemType)
}

// CheckLocal fails when path sits on a remote filesystem. label names the
// config field in the error. Platforms without detection pass.
func CheckLocal(path, label string) error {
	err := checkLocalWith(path, label, detectFilesystemType)
	if errors.Is(err, errDetectUnsupported) {
		return nil
	}
	return err
}

func inspectWith(path string, detect detectFunc) (Mount, error) {
	if path == "" {
		return Mount{}, fmt.Errorf("path is empty")
	}
	existing, err := nearestExistingPath(path)
	if err != nil {
		return Mount{}, fmt.Errorf("resolve %q: %w", path, err)
	}
	fsType, err := detect(existing)
	if err != nil {
		return Mount{}, fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	return Mount{Path: existing, Type: fsType}, nil
}

func checkLocalWith(path, label string, detect detectFunc) error {
	m, err := inspectWith(path, detect)
	if err != nil {
		return err
	}
	if m.Remote() {
		return fmt.Errorf("%s %q is on remote filesystem %q; use local disk", label, path, m.Type)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		candidate = parent
	}
}

func isRemoteFilesystem(fsType string) bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return ok
}
