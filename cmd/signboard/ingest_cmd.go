package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ccpd/signboard/internal/ingest"
	"github.com/ccpd/signboard/internal/log"
)

func runIngest(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	itemsPath := fs.String("items", "", "JSON array of playlist items, or - for stdin")
	pdfPath := fs.String("pdf", "", "Local PDF to ingest")
	duration := fs.Int("duration", 10, "Seconds per page for --pdf")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (*itemsPath == "") == (*pdfPath == "") {
		fmt.Fprintln(os.Stderr, "Usage: signboard ingest (--items FILE | --pdf FILE) [--duration N]")
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// stdout carries the playlist.
	log.SetOutput(cfg.Service.LogLevel, os.Stderr)
	logger := log.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		return 1
	}
	defer p.Close()

	var items []ingest.RawItem
	if *pdfPath != "" {
		item, err := stagePDF(p.inbox, *pdfPath, *duration)
		if err != nil {
			logger.Error("failed to stage pdf", "path", *pdfPath, "error", err)
			return 1
		}
		items = []ingest.RawItem{item}
	} else {
		items, err = readItems(*itemsPath)
		if err != nil {
			logger.Error("failed to read items", "path", *itemsPath, "error", err)
			return 1
		}
	}

	pl, err := p.assembler.Assemble(ctx, items)
	if err != nil {
		logger.Error("ingest failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pl); err != nil {
		return 1
	}
	return 0
}

// stagePDF copies a local file into the inbox so it travels the same path as
// an HTTP upload.
func stagePDF(inbox *ingest.Inbox, path string, duration int) (ingest.RawItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.RawItem{}, err
	}
	defer f.Close()

	ref, kind, err := inbox.Save(f, filepath.Base(path))
	if err != nil {
		return ingest.RawItem{}, err
	}
	if kind != ingest.TypePDF {
		return ingest.RawItem{}, fmt.Errorf("%s is not a pdf", path)
	}
	return ingest.RawItem{Type: ingest.TypePDF, FileRef: ref, Duration: duration}, nil
}

func readItems(path string) ([]ingest.RawItem, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var items []ingest.RawItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}
