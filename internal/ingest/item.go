// Package ingest turns raw playlist submissions into playable media
// playlists, rasterizing and uploading PDF documents along the way.
package ingest

import (
	"fmt"
	"strings"

	"github.com/ccpd/signboard/internal/fault"
)

// Item types accepted in a raw playlist.
const (
	TypeImage = "image"
	TypePDF   = "pdf"
)

// RawItem is one entry of a submitted playlist. Exactly one of URL or
// FileRef names the source.
type RawItem struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	FileRef  string `json:"file_ref,omitempty"`
	Duration int    `json:"duration"`
}

// MediaItem is one playable entry. Duration is in seconds.
type MediaItem struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

// Playlist is an ordered sequence of media items.
type Playlist []MediaItem

// Validate checks every item before any work starts.
func Validate(items []RawItem) error {
	for i, item := range items {
		if err := item.validate(); err != nil {
			return fault.Wrap(fault.ErrInvalidInput, fmt.Sprintf("item %d", i), err)
		}
	}
	return nil
}

// trimmed returns it with surrounding whitespace removed from its sources.
func (it RawItem) trimmed() RawItem {
	it.URL = strings.TrimSpace(it.URL)
	it.FileRef = strings.TrimSpace(it.FileRef)
	return it
}

func (it RawItem) validate() error {
	switch it.Type {
	case TypeImage, TypePDF:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unsupported type %q", it.Type)
	}
	if it.Duration <= 0 {
		return fmt.Errorf("duration must be a positive number of seconds, got %d", it.Duration)
	}

	url := strings.TrimSpace(it.URL)
	ref := strings.TrimSpace(it.FileRef)
	switch {
	case url == "" && ref == "":
		return fmt.Errorf("%s item needs url or file_ref", it.Type)
	case url != "" && ref != "":
		return fmt.Errorf("%s item has both url and file_ref", it.Type)
	}
	if ref != "" {
		if err := checkRef(ref); err != nil {
			return err
		}
	}
	return nil
}
