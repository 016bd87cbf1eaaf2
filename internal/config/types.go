package config

import "time"

// Remote store backends.
const (
	BackendDrive = "drive"
	BackendGit   = "git"
)

// Config represents the complete signboard configuration.
type Config struct {
	Include   []string        `yaml:"include,omitempty"`
	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	API       APIConfig       `yaml:"api"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Remote    RemoteConfig    `yaml:"remote"`
	Display   DisplayConfig   `yaml:"display"`

	// SourceFiles lists the absolute paths of every file that was merged,
	// root first.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	// PublicURL is the externally reachable base URL used to build media links.
	PublicURL string `yaml:"public_url"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
	// APIKey is the single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey          string        `yaml:"api_key"`
	Tokens          []APIToken    `yaml:"tokens,omitempty"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AssembleTimeout time.Duration `yaml:"assemble_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WorkspaceConfig defines where scratch directories live.
type WorkspaceConfig struct {
	BaseDir string `yaml:"base_dir"`
	// SweepAfter is the age past which leftover workspaces are removed at startup.
	SweepAfter time.Duration `yaml:"sweep_after"`
}

// IngestConfig tunes the media ingestion pipeline.
type IngestConfig struct {
	FolderPrefix      string        `yaml:"folder_prefix"`
	UploadsFolder     string        `yaml:"uploads_folder"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	MaxFetchBytes     int64         `yaml:"max_fetch_bytes"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	RasterScale       float64       `yaml:"raster_scale"`
	InboxDir          string        `yaml:"inbox_dir"`
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	Backend string      `yaml:"backend"`
	Drive   DriveConfig `yaml:"drive"`
	Git     GitConfig   `yaml:"git"`
}

// DriveConfig holds Drive credentials and limits.
type DriveConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	// Token is an inline JSON token; TokenFile is read when Token is empty.
	Token             string  `yaml:"token"`
	TokenFile         string  `yaml:"token_file"`
	RootFolderID      string  `yaml:"root_folder_id"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// GitConfig configures the local directory backend.
type GitConfig struct {
	Root        string `yaml:"root"`
	Commit      bool   `yaml:"commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// DisplayConfig configures the display websocket.
type DisplayConfig struct {
	// AllowedOrigins restricts websocket origins. Empty allows same-host only.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "signboard",
			LogLevel:  "info",
			PublicURL: "http://127.0.0.1:8080",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Listen:          "127.0.0.1:8080",
			MaxUploadBytes:  50 << 20,
			AssembleTimeout: 10 * time.Minute,
			ShutdownTimeout: 5 * time.Second,
		},
		Workspace: WorkspaceConfig{
			BaseDir:    "./data/work",
			SweepAfter: time.Hour,
		},
		Ingest: IngestConfig{
			FolderPrefix:      "slides",
			UploadsFolder:     "uploads",
			UploadConcurrency: 4,
			MaxFetchBytes:     200 << 20,
			FetchTimeout:      2 * time.Minute,
			RasterScale:       1.0,
			InboxDir:          "./data/inbox",
		},
		Remote: RemoteConfig{
			Backend: BackendGit,
			Drive: DriveConfig{
				RequestsPerSecond: 5,
				Burst:             5,
			},
			Git: GitConfig{
				Root:        "./data/media",
				AuthorName:  "signboard",
				AuthorEmail: "signboard@localhost",
			},
		},
	}
}
