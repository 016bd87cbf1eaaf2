package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

//go:generate mockgen -destination=mocks/mock_files.go -package=mocks github.com/ccpd/signboard/internal/remote/drive Files

const folderMIME = "application/vnd.google-apps.folder"

// Entry is a Drive file or folder.
type Entry struct {
	ID     string
	Name   string
	Folder bool
}

// Files is the subset of the Drive API the store needs.
type Files interface {
	// Find returns the non-trashed children of parentID named name.
	Find(ctx context.Context, parentID, name string) ([]Entry, error)
	// ListFiles returns the non-trashed, non-folder children of parentID.
	ListFiles(ctx context.Context, parentID string) ([]Entry, error)
	// CreateFolder creates a folder and returns its id.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	// CreateFile uploads body as a new file and returns its id.
	CreateFile(ctx context.Context, parentID, name, mimeType string, body io.Reader) (string, error)
	// MakePublic grants anyone read access to fileID.
	MakePublic(ctx context.Context, fileID string) error
	// Download opens the content of fileID.
	Download(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

// apiFiles implements Files on the Drive v3 REST API.
type apiFiles struct {
	svc *gdrive.Service
}

// NewAPIFiles wraps a Drive service.
func NewAPIFiles(svc *gdrive.Service) Files {
	return &apiFiles{svc: svc}
}

func (a *apiFiles) Find(ctx context.Context, parentID, name string) ([]Entry, error) {
	return a.list(ctx, nameQuery(parentID, name), "")
}

func (a *apiFiles) ListFiles(ctx context.Context, parentID string) ([]Entry, error) {
	return a.list(ctx, filesQuery(parentID), "name_natural")
}

func (a *apiFiles) list(ctx context.Context, q, orderBy string) ([]Entry, error) {
	call := a.svc.Files.List().Q(q).Spaces("drive").Fields("nextPageToken, files(id, name, mimeType)")
	if orderBy != "" {
		call = call.OrderBy(orderBy)
	}

	var out []Entry
	err := call.Pages(ctx, func(page *gdrive.FileList) error {
		for _, f := range page.Files {
			out = append(out, Entry{ID: f.Id, Name: f.Name, Folder: f.MimeType == folderMIME})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files (%s): %w", q, err)
	}
	return out, nil
}

func (a *apiFiles) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f, err := a.svc.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: folderMIME,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return f.Id, nil
}

func (a *apiFiles) CreateFile(ctx context.Context, parentID, name, mimeType string, body io.Reader) (string, error) {
	f, err := a.svc.Files.Create(&gdrive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(body, googleapi.ContentType(mimeType)).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", name, err)
	}
	return f.Id, nil
}

func (a *apiFiles) MakePublic(ctx context.Context, fileID string) error {
	_, err := a.svc.Permissions.Create(fileID, &gdrive.Permission{
		Role: "reader",
		Type: "anyone",
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("grant public read on %s: %w", fileID, err)
	}
	return nil
}

func (a *apiFiles) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	resp, err := a.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", fileID, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("download %s: status %d", fileID, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func nameQuery(parentID, name string) string {
	return fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID))
}

func filesQuery(parentID string) string {
	return fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escapeQuery(parentID), folderMIME)
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
