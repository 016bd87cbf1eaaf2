// Package gitstore implements remote.Store on a local directory tree that
// is optionally versioned with git and served over HTTP under /media/.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

// MediaPrefix is the URL path the tree is served under.
const MediaPrefix = "/media/"

// Config configures a Store.
type Config struct {
	Root        string
	PublicURL   string
	Commit      bool
	AuthorName  string
	AuthorEmail string
}

// Store is a filesystem-backed remote.Store.
type Store struct {
	root      string
	publicURL string
	author    object.Signature

	repo   *git.Repository
	repoMu sync.Mutex

	locks remote.KeyedMutex
	now   func() time.Time
}

var _ remote.Store = (*Store)(nil)

// New opens (or initializes) the tree at cfg.Root. When cfg.Commit is set the
// directory is opened as a git repository, initializing one if needed.
func New(cfg Config) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("gitstore root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve gitstore root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create gitstore root: %w", err)
	}

	s := &Store{
		root:      abs,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		author: object.Signature{
			Name:  cfg.AuthorName,
			Email: cfg.AuthorEmail,
		},
		now: time.Now,
	}
	if s.author.Name == "" {
		s.author.Name = "signboard"
	}
	if s.author.Email == "" {
		s.author.Email = "signboard@localhost"
	}

	if cfg.Commit {
		repo, err := git.PlainOpen(abs)
		if errors.Is(err, git.ErrRepositoryNotExists) {
			repo, err = git.PlainInit(abs, false)
		}
		if err != nil {
			return nil, fmt.Errorf("open git repository %s: %w", abs, err)
		}
		s.repo = repo
	}
	return s, nil
}

// Root returns the absolute directory backing the store.
func (s *Store) Root() string {
	return s.root
}

// PathInfo implements remote.Store.
func (s *Store) PathInfo(ctx context.Context, path string) (remote.PathInfo, error) {
	segs, err := checkSegments(path)
	if err != nil {
		return remote.NotFound, err
	}
	if len(segs) == 0 {
		return remote.PathInfo{Exists: true, Kind: remote.KindFolder}, nil
	}

	cur := s.root
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			return remote.NotFound, fault.Wrap(fault.ErrRemoteStore, "path info", err)
		}
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return remote.NotFound, nil
		}
		if err != nil {
			return remote.NotFound, fault.Wrap(fault.ErrRemoteStore, "path info", err)
		}

		last := i == len(segs)-1
		switch {
		case info.IsDir():
			if last {
				return remote.PathInfo{Exists: true, Kind: remote.KindFolder}, nil
			}
		case info.Mode().IsRegular():
			if last {
				return remote.PathInfo{Exists: true, Kind: remote.KindFile}, nil
			}
			// A file in the middle of the path cannot have children.
			return remote.NotFound, nil
		default:
			return remote.NotFound, nil
		}
	}
	return remote.NotFound, nil
}

// ListFolder implements remote.Store.
func (s *Store) ListFolder(ctx context.Context, path string) ([]string, error) {
	info, err := s.PathInfo(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Kind != remote.KindFolder {
		return []string{}, nil
	}

	rel := remote.Join(path)
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fault.Wrap(fault.ErrRemoteStore, "list folder", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	remote.SortNatural(names)

	urls := make([]string, len(names))
	for i, n := range names {
		urls[i] = s.url(remote.Join(rel, n))
	}
	return urls, nil
}

// CreateFolder implements remote.Store.
func (s *Store) CreateFolder(ctx context.Context, path string) (remote.Folder, error) {
	segs, err := checkSegments(path)
	if err != nil {
		return remote.Folder{}, err
	}

	cur := s.root
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return remote.Folder{}, fault.Wrap(fault.ErrRemoteStore, "create folder", err)
		}
		cur = filepath.Join(cur, seg)
		err := os.Mkdir(cur, 0o755)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrExist) {
			return remote.Folder{}, fault.Wrap(fault.ErrRemoteStore, "create folder", err)
		}
		info, statErr := os.Lstat(cur)
		if statErr != nil {
			return remote.Folder{}, fault.Wrap(fault.ErrRemoteStore, "create folder", statErr)
		}
		if !info.IsDir() {
			return remote.Folder{}, fault.New(fault.ErrRemoteStore, "create folder", "%s exists and is not a folder", seg)
		}
	}

	rel := strings.Join(segs, "/")
	return remote.Folder{ID: rel, Path: rel}, nil
}

// Upload implements remote.Store.
func (s *Store) Upload(ctx context.Context, localFile, name string, folder remote.Folder) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	segs, err := checkSegments(folder.ID)
	if err != nil {
		return "", err
	}
	rel := remote.Join(append(segs, name)...)

	unlock := s.locks.Lock(rel)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return "", fault.Wrap(fault.ErrRemoteStore, "upload", err)
	}

	target := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.Mode().IsRegular():
		return s.url(rel), nil
	case err == nil:
		return "", fault.New(fault.ErrRemoteStore, "upload", "%s exists and is not a file", rel)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fault.Wrap(fault.ErrRemoteStore, "upload", err)
	}

	if err := copyInto(localFile, target); err != nil {
		return "", err
	}

	if s.repo != nil {
		if err := s.commit(rel); err != nil {
			return "", err
		}
	}
	return s.url(rel), nil
}

// Handler serves stored files, hiding dot-prefixed entries such as .git.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, seg := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Store) commit(rel string) error {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "open worktree", err)
	}
	if _, err := wt.Add(rel); err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "git add", err)
	}

	author := s.author
	author.When = s.now()
	if _, err := wt.Commit("add "+rel, &git.CommitOptions{Author: &author}); err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "git commit", err)
	}
	return nil
}

func (s *Store) url(rel string) string {
	segs := strings.Split(rel, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.publicURL + MediaPrefix + strings.Join(segs, "/")
}

func copyInto(localFile, target string) error {
	src, err := os.Open(localFile)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "open upload source", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "create upload temp", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return fault.Wrap(fault.ErrRemoteStore, "write upload", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fault.Wrap(fault.ErrRemoteStore, "chmod upload", err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "close upload", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "place upload", err)
	}
	return nil
}

func checkSegments(path string) ([]string, error) {
	segs := remote.Segments(path)
	for _, seg := range segs {
		if err := checkName(seg); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

func checkName(name string) error {
	switch {
	case name == "" || name == "..":
		return fault.New(fault.ErrRemoteStore, "resolve path", "invalid segment %q", name)
	case strings.HasPrefix(name, "."):
		return fault.New(fault.ErrRemoteStore, "resolve path", "hidden segment %q not allowed", name)
	case strings.ContainsAny(name, `/\`):
		return fault.New(fault.ErrRemoteStore, "resolve path", "segment %q contains a separator", name)
	}
	return nil
}
