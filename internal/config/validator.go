package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ccpd/signboard/internal/auth"
)

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	u, err := url.Parse(cfg.Service.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service.public_url must be an absolute http(s) URL (got %q)", cfg.Service.PublicURL)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if err := validateAPI(&cfg.API); err != nil {
		return err
	}

	if cfg.Workspace.BaseDir == "" {
		return fmt.Errorf("workspace.base_dir is required")
	}
	if cfg.Workspace.SweepAfter < 0 {
		return fmt.Errorf("workspace.sweep_after must not be negative")
	}

	if err := validateIngest(&cfg.Ingest); err != nil {
		return err
	}

	return validateRemote(&cfg.Remote)
}

func validateAPI(api *APIConfig) error {
	if api.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if err := checkUnresolved("api.api_key", api.APIKey); err != nil {
		return err
	}
	for i, tok := range api.Tokens {
		field := fmt.Sprintf("api.tokens[%d].token", i)
		if tok.Token == "" {
			return fmt.Errorf("%s is required", field)
		}
		if err := checkUnresolved(field, tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.tokens[%d].scopes must be non-empty", i)
		}
		for _, s := range tok.Scopes {
			if !auth.KnownScope(strings.TrimSpace(s)) {
				return fmt.Errorf("api.tokens[%d]: unknown scope %q", i, s)
			}
		}
	}
	if api.MaxUploadBytes <= 0 {
		return fmt.Errorf("api.max_upload_bytes must be positive")
	}
	if api.AssembleTimeout < 0 || api.ShutdownTimeout < 0 {
		return fmt.Errorf("api timeouts must not be negative")
	}
	return nil
}

func validateIngest(in *IngestConfig) error {
	for field, folder := range map[string]string{
		"ingest.folder_prefix":  in.FolderPrefix,
		"ingest.uploads_folder": in.UploadsFolder,
	} {
		if folder == "" {
			return fmt.Errorf("%s is required", field)
		}
		for _, seg := range strings.Split(folder, "/") {
			if seg == "" || seg == "." || seg == ".." {
				return fmt.Errorf("%s: invalid path %q", field, folder)
			}
		}
	}
	if in.UploadConcurrency < 1 {
		return fmt.Errorf("ingest.upload_concurrency must be at least 1 (got %d)", in.UploadConcurrency)
	}
	if in.MaxFetchBytes <= 0 {
		return fmt.Errorf("ingest.max_fetch_bytes must be positive")
	}
	if in.FetchTimeout <= 0 {
		return fmt.Errorf("ingest.fetch_timeout must be positive")
	}
	if in.RasterScale <= 0 || in.RasterScale > 8 {
		return fmt.Errorf("ingest.raster_scale must be in (0, 8] (got %g)", in.RasterScale)
	}
	if in.InboxDir == "" {
		return fmt.Errorf("ingest.inbox_dir is required")
	}
	return nil
}

func validateRemote(r *RemoteConfig) error {
	switch r.Backend {
	case BackendDrive:
		d := r.Drive
		required := []struct{ field, value string }{
			{"remote.drive.client_id", d.ClientID},
			{"remote.drive.client_secret", d.ClientSecret},
			{"remote.drive.root_folder_id", d.RootFolderID},
		}
		for _, req := range required {
			if req.value == "" {
				return fmt.Errorf("%s is required for the drive backend", req.field)
			}
			if err := checkUnresolved(req.field, req.value); err != nil {
				return err
			}
		}
		if d.Token == "" && d.TokenFile == "" {
			return fmt.Errorf("remote.drive.token or remote.drive.token_file is required for the drive backend")
		}
		if err := checkUnresolved("remote.drive.token", d.Token); err != nil {
			return err
		}
		if d.RequestsPerSecond <= 0 {
			return fmt.Errorf("remote.drive.requests_per_second must be positive")
		}
	case BackendGit:
		if r.Git.Root == "" {
			return fmt.Errorf("remote.git.root is required for the git backend")
		}
	default:
		return fmt.Errorf("remote.backend must be one of: %s, %s (got %q)", BackendDrive, BackendGit, r.Backend)
	}
	return nil
}

// checkUnresolved reports a ${VAR} placeholder left in a secret field.
func checkUnresolved(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
