// Package drive implements remote.Store on Google Drive.
//
// Logical paths resolve from a configured root folder id, one folder name
// per segment. Drive allows duplicate names; lookups always take the first
// match so racing writers converge on the same object.
package drive

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

// ProxyPrefix is the URL path public file links are served under.
const ProxyPrefix = "/proxy/drive/"

// Config configures a Store.
type Config struct {
	RootFolderID string
	PublicURL    string
	// RequestsPerSecond caps Drive API calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// Store is a Drive-backed remote.Store.
type Store struct {
	files     Files
	root      string
	publicURL string
	limiter   *rate.Limiter
	locks     remote.KeyedMutex
}

var _ remote.Store = (*Store)(nil)

// New returns a Store that talks to Drive through files.
func New(files Files, cfg Config) *Store {
	s := &Store{
		files:     files,
		root:      cfg.RootFolderID,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}
	if s.root == "" {
		s.root = "root"
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// PathInfo implements remote.Store.
func (s *Store) PathInfo(ctx context.Context, path string) (remote.PathInfo, error) {
	segs := remote.Segments(path)
	if len(segs) == 0 {
		return remote.PathInfo{Exists: true, Kind: remote.KindFolder}, nil
	}

	parent, found, err := s.resolveFolder(ctx, segs[:len(segs)-1])
	if err != nil || !found {
		return remote.NotFound, err
	}

	entries, err := s.find(ctx, parent, segs[len(segs)-1])
	if err != nil {
		return remote.NotFound, err
	}
	if len(entries) == 0 {
		return remote.NotFound, nil
	}
	for _, e := range entries {
		if e.Folder {
			return remote.PathInfo{Exists: true, Kind: remote.KindFolder}, nil
		}
	}
	return remote.PathInfo{Exists: true, Kind: remote.KindFile}, nil
}

// ListFolder implements remote.Store.
func (s *Store) ListFolder(ctx context.Context, path string) ([]string, error) {
	id, found, err := s.resolveFolder(ctx, remote.Segments(path))
	if err != nil {
		return nil, err
	}
	if !found {
		return []string{}, nil
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	entries, err := s.files.ListFiles(ctx, id)
	if err != nil {
		return nil, fault.Wrap(fault.ErrRemoteStore, "list folder", err)
	}

	files := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Folder {
			files = append(files, e)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return remote.NaturalLess(files[i].Name, files[j].Name)
	})

	urls := make([]string, len(files))
	for i, e := range files {
		urls[i] = s.URL(e.ID)
	}
	return urls, nil
}

// CreateFolder implements remote.Store.
func (s *Store) CreateFolder(ctx context.Context, path string) (remote.Folder, error) {
	segs := remote.Segments(path)
	cur := s.root
	for _, seg := range segs {
		id, err := s.ensureFolder(ctx, cur, seg)
		if err != nil {
			return remote.Folder{}, err
		}
		cur = id
	}
	return remote.Folder{ID: cur, Path: strings.Join(segs, "/")}, nil
}

// Upload implements remote.Store.
func (s *Store) Upload(ctx context.Context, localFile, name string, folder remote.Folder) (string, error) {
	parent := folder.ID
	if parent == "" {
		parent = s.root
	}

	unlock := s.locks.Lock(parent + "/" + name)
	defer unlock()

	entries, err := s.find(ctx, parent, name)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.Folder {
			return s.URL(e.ID), nil
		}
	}

	f, err := os.Open(localFile)
	if err != nil {
		return "", fault.Wrap(fault.ErrIO, "open upload source", err)
	}
	defer f.Close()

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	id, err := s.files.CreateFile(ctx, parent, name, remote.MIMEType(name), f)
	if err != nil {
		return "", fault.Wrap(fault.ErrRemoteStore, "upload", err)
	}

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if err := s.files.MakePublic(ctx, id); err != nil {
		return "", fault.Wrap(fault.ErrRemoteStore, "make public", err)
	}
	return s.URL(id), nil
}

// Open streams a stored file for the proxy route.
func (s *Store) Open(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, "", err
	}
	rc, contentType, err := s.files.Download(ctx, fileID)
	if err != nil {
		return nil, "", fault.Wrap(fault.ErrRemoteStore, "download", err)
	}
	return rc, contentType, nil
}

// URL returns the public link for a Drive file id.
func (s *Store) URL(fileID string) string {
	return s.publicURL + ProxyPrefix + fileID
}

func (s *Store) resolveFolder(ctx context.Context, segs []string) (string, bool, error) {
	cur := s.root
	for _, seg := range segs {
		entries, err := s.find(ctx, cur, seg)
		if err != nil {
			return "", false, err
		}
		next := firstFolder(entries)
		if next == "" {
			return "", false, nil
		}
		cur = next
	}
	return cur, true, nil
}

func (s *Store) ensureFolder(ctx context.Context, parent, name string) (string, error) {
	unlock := s.locks.Lock(parent + "/" + name)
	defer unlock()

	entries, err := s.find(ctx, parent, name)
	if err != nil {
		return "", err
	}
	if id := firstFolder(entries); id != "" {
		return id, nil
	}

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	id, err := s.files.CreateFolder(ctx, parent, name)
	if err != nil {
		return "", fault.Wrap(fault.ErrRemoteStore, "create folder", err)
	}
	return id, nil
}

func (s *Store) find(ctx context.Context, parent, name string) ([]Entry, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	entries, err := s.files.Find(ctx, parent, name)
	if err != nil {
		return nil, fault.Wrap(fault.ErrRemoteStore, "lookup "+name, err)
	}
	return entries, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fault.Wrap(fault.ErrRemoteStore, "rate limit", err)
	}
	return nil
}

func firstFolder(entries []Entry) string {
	for _, e := range entries {
		if e.Folder {
			return e.ID
		}
	}
	return ""
}
