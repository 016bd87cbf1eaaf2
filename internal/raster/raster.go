// Package raster converts paged documents into one image file per page.
package raster

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/ccpd/signboard/internal/fault"
)

// baseDPI is the resolution of a PDF point grid at scale 1.0.
const baseDPI = 72.0

// Rasterizer renders a PDF into page images inside dir.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, dir string) ([]string, error)
}

// PageName returns the file name for 1-based page n.
func PageName(n int) string {
	return fmt.Sprintf("page_%d.png", n)
}

// Fitz renders pages with MuPDF.
type Fitz struct {
	// Scale multiplies the 72 DPI base resolution. Zero means 1.0.
	Scale float64
}

// NewFitz returns a MuPDF rasterizer at the given scale.
func NewFitz(scale float64) *Fitz {
	return &Fitz{Scale: scale}
}

func (f *Fitz) dpi() float64 {
	if f.Scale <= 0 {
		return baseDPI
	}
	return baseDPI * f.Scale
}

// Rasterize writes page_1.png .. page_N.png into dir, in page order, and
// returns their paths. Pages are rendered and encoded one at a time so at
// most one decoded page is held in memory.
func (f *Fitz) Rasterize(ctx context.Context, pdfPath, dir string) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fault.Wrap(fault.ErrConversion, "open document", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total <= 0 {
		return nil, fault.New(fault.ErrConversion, "rasterize", "document %s has no pages", filepath.Base(pdfPath))
	}

	pages := make([]string, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fault.Wrap(fault.ErrConversion, fmt.Sprintf("render page %d", i+1), err)
		}

		img, err := doc.ImageDPI(i, f.dpi())
		if err != nil {
			return nil, fault.Wrap(fault.ErrConversion, fmt.Sprintf("render page %d", i+1), err)
		}

		out := filepath.Join(dir, PageName(i+1))
		if err := writePNG(out, img); err != nil {
			return nil, err
		}
		pages = append(pages, out)
	}

	if len(pages) == 0 {
		return nil, fault.New(fault.ErrConversion, "rasterize", "no images generated from %s", filepath.Base(pdfPath))
	}
	return pages, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "create page image", err)
	}

	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		_ = f.Close()
		return fault.Wrap(fault.ErrConversion, "encode page image", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fault.Wrap(fault.ErrIO, "write page image", err)
	}
	if err := f.Close(); err != nil {
		return fault.Wrap(fault.ErrIO, "close page image", err)
	}
	return nil
}
