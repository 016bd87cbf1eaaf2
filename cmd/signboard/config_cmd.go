package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ccpd/signboard/internal/auth"
	"github.com/ccpd/signboard/internal/config"
)

const redacted = "[redacted]"

func runConfigCheck(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(out, "Configuration: %s\n", path)
		fmt.Fprintf(out, "Status: FAILED\n  %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "Configuration: %s\n", path)
	for _, f := range cfg.SourceFiles[1:] {
		fmt.Fprintf(out, "  include: %s\n", f)
	}
	fmt.Fprintf(out, "Backend: %s\n", cfg.Remote.Backend)
	fmt.Fprintf(out, "Listen: %s (public %s)\n", cfg.API.Listen, cfg.Service.PublicURL)
	if auth.NewKeyring(cfg.API.APIKey, apiTokens(cfg)).Open() {
		fmt.Fprintln(out, "Warning: no api_key or tokens configured; mutating routes are open")
	}
	fmt.Fprintln(out, "Status: Configuration check PASSED.")
	return 0
}

func runConfigLock(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Compute hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	report, err := config.Lock(path, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	for _, f := range report.Files {
		fmt.Fprintf(out, "%s  %s\n", f.Hash, f.Path)
	}
	if report.Written {
		for _, m := range report.Manifests {
			fmt.Fprintf(out, "wrote %s\n", m)
		}
	} else {
		fmt.Fprintln(out, "dry-run: no files written")
	}
	return 0
}

func runConfigShow(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	data, err := yaml.Marshal(redact(*cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	_, _ = out.Write(data)
	return 0
}

// redact blanks every secret in a copy of cfg.
func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.API.APIKey)
	tokens := make([]config.APIToken, len(cfg.API.Tokens))
	copy(tokens, cfg.API.Tokens)
	for i := range tokens {
		mask(&tokens[i].Token)
	}
	cfg.API.Tokens = tokens
	mask(&cfg.Remote.Drive.ClientSecret)
	mask(&cfg.Remote.Drive.Token)
	return cfg
}
