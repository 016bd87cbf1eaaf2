package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ccpd/signboard/internal/api"
	"github.com/ccpd/signboard/internal/auth"
	"github.com/ccpd/signboard/internal/config"
	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/digest"
	"github.com/ccpd/signboard/internal/display"
	"github.com/ccpd/signboard/internal/events"
	"github.com/ccpd/signboard/internal/ingest"
	"github.com/ccpd/signboard/internal/metrics"
	"github.com/ccpd/signboard/internal/raster"
	"github.com/ccpd/signboard/internal/remote"
	"github.com/ccpd/signboard/internal/remote/drive"
	"github.com/ccpd/signboard/internal/remote/gitstore"
	"github.com/ccpd/signboard/internal/state"
	"github.com/ccpd/signboard/internal/storage"
	"github.com/ccpd/signboard/internal/upload"
	"github.com/ccpd/signboard/internal/workspace"
)

// newRasterizer is swapped in tests that run without MuPDF.
var newRasterizer = func(scale float64) raster.Rasterizer {
	return raster.NewFitz(scale)
}

// backend is the remote store chosen by remote.backend plus the HTTP
// surfaces that only one backend provides.
type backend struct {
	store remote.Store
	media http.Handler
	drive api.FileOpener
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Remote.Backend {
	case config.BackendDrive:
		d := cfg.Remote.Drive
		svc, err := drive.NewService(ctx, drive.Credentials{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RedirectURL:  d.RedirectURL,
			Token:        d.Token,
			TokenFile:    d.TokenFile,
		})
		if err != nil {
			return backend{}, err
		}
		store := drive.New(drive.NewAPIFiles(svc), drive.Config{
			RootFolderID:      d.RootFolderID,
			PublicURL:         cfg.Service.PublicURL,
			RequestsPerSecond: d.RequestsPerSecond,
			Burst:             d.Burst,
		})
		return backend{store: store, drive: store}, nil
	case config.BackendGit:
		g := cfg.Remote.Git
		store, err := gitstore.New(gitstore.Config{
			Root:        g.Root,
			PublicURL:   cfg.Service.PublicURL,
			Commit:      g.Commit,
			AuthorName:  g.AuthorName,
			AuthorEmail: g.AuthorEmail,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{store: store, media: store.Handler()}, nil
	default:
		return backend{}, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// pipeline is the ingestion side of the service, shared by `system start`
// and the one-off `ingest` command.
type pipeline struct {
	db        *sql.DB
	backend   backend
	inbox     *ingest.Inbox
	history   *state.IngestLog
	assembler *ingest.Assembler
}

func openPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*pipeline, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	p := &pipeline{db: db}
	if err := p.init(ctx, cfg, m, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) init(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) error {
	wsm, err := workspace.NewManager(cfg.Workspace.BaseDir)
	if err != nil {
		return fmt.Errorf("workspace manager: %w", err)
	}
	for label, dir := range map[string]string{
		"workspace.base_dir": cfg.Workspace.BaseDir,
		"ingest.inbox_dir":   cfg.Ingest.InboxDir,
	} {
		if err := storage.CheckLocal(dir, label); err != nil {
			logger.Warn("scratch directory may be slow or unsafe", "field", label, "error", err)
		}
	}
	if cfg.Workspace.SweepAfter > 0 {
		report, err := wsm.Sweep(cfg.Workspace.SweepAfter)
		if err != nil {
			logger.Warn("workspace sweep failed", "base_dir", wsm.BaseDir(), "error", err)
		} else if report.DeletedDirs > 0 {
			logger.Info("removed stale workspaces", "count", report.DeletedDirs)
		}
	}

	p.backend, err = openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("remote store: %w", err)
	}

	p.inbox, err = ingest.NewInbox(cfg.Ingest.InboxDir, cfg.API.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("upload inbox: %w", err)
	}
	p.history = state.NewIngestLog(p.db)

	uploadOpts := []upload.Option{upload.WithLogger(logger.With("component", "upload"))}
	deps := ingest.Deps{
		Workspaces:    wsm,
		Hasher:        digest.Hasher{},
		Rasterizer:    newRasterizer(cfg.Ingest.RasterScale),
		Store:         p.backend.store,
		Dedup:         ingest.NewDedupResolver(p.backend.store, cfg.Ingest.FolderPrefix),
		Fetcher:       ingest.NewHTTPFetcher(cfg.Ingest.FetchTimeout, cfg.Ingest.MaxFetchBytes),
		Inbox:         p.inbox,
		UploadsFolder: cfg.Ingest.UploadsFolder,
		Recorder:      p.history,
		Logger:        logger.With("component", "ingest"),
	}
	if m != nil {
		deps.Observer = m
		uploadOpts = append(uploadOpts, upload.WithObserver(m))
	}
	deps.Uploader = upload.New(p.backend.store, cfg.Ingest.UploadConcurrency, uploadOpts...)

	p.assembler, err = ingest.NewAssembler(deps)
	return err
}

func (p *pipeline) Close() error {
	return p.db.Close()
}

// service is everything `system start` runs.
type service struct {
	*pipeline
	dash        *dashboard.Store
	hub         *events.Hub
	metrics     *metrics.Metrics
	snapshotter *state.Snapshotter
	displays    *display.Handler
	api         *api.Server
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service, error) {
	m := metrics.New()
	p, err := openPipeline(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	snapshots := state.NewStore(p.db)
	dash := dashboard.NewStore()
	st, found, err := snapshots.Load(ctx)
	switch {
	case err != nil:
		// A damaged snapshot must not keep the screens dark.
		logger.Warn("failed to load dashboard snapshot, starting from defaults", "error", err)
	case found:
		snap := dash.Replace(st)
		logger.Info("dashboard restored", "version", snap.Version)
	}

	hub := events.NewHub(256)
	snapshotter := state.NewSnapshotter(snapshots, logger.With("component", "snapshot"),
		state.WithErrorHook(func(err error) {
			m.SnapshotFailed(err)
			hub.Publish(events.TypeSnapshotFailed, map[string]string{"error": err.Error()})
		}),
	)
	displays := display.NewHandler(hub, dash, logger.With("component", "display"), m, cfg.Display.AllowedOrigins)

	deps := api.Deps{
		Dashboard: dash,
		Events:    hub,
		Assembler: p.assembler,
		Snapshots: snapshotter,
		Inbox:     p.inbox,
		Drive:     p.backend.drive,
		Media:     p.backend.media,
		Displays:  displays,
		Metrics:   m.Handler(),
		History:   p.history,
	}
	server := api.New(api.Config{
		Listen:          cfg.API.Listen,
		APIKey:          cfg.API.APIKey,
		Tokens:          apiTokens(cfg),
		MaxUploadBytes:  cfg.API.MaxUploadBytes,
		AssembleTimeout: cfg.API.AssembleTimeout,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, deps, logger.With("component", "api"))

	return &service{
		pipeline:    p,
		dash:        dash,
		hub:         hub,
		metrics:     m,
		snapshotter: snapshotter,
		displays:    displays,
		api:         server,
	}, nil
}

func apiTokens(cfg *config.Config) []auth.TokenConfig {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Tokens))
	for _, t := range cfg.API.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return tokens
}
