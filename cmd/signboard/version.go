package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X main.version=... -X main.gitCommit=... -X main.buildDate=...".
var (
	version   = "0.1.0-dev"
	gitCommit = ""
	buildDate = ""
)

const unknown = "unknown"

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version"`
}

func runVersion(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: signboard version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		return 0
	}

	commit := info.Commit
	if info.Dirty {
		commit += " (modified)"
	}
	fmt.Fprintf(out, "signboard %s\ncommit: %s\nbuilt_at: %s\ngo: %s\n", info.Version, commit, info.BuildTime, info.GoVersion)
	return 0
}

func currentVersionInfo() versionInfo {
	vcs := map[string]string{}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if strings.HasPrefix(s.Key, "vcs.") {
				vcs[s.Key] = s.Value
			}
		}
	}

	info := versionInfo{
		Version:   firstNonEmpty(version, "0.0.0-dev"),
		Commit:    shortenCommit(firstNonEmpty(gitCommit, vcs["vcs.revision"], unknown)),
		BuildTime: unknown,
		Dirty:     vcs["vcs.modified"] == "true",
		GoVersion: runtime.Version(),
	}
	if built, ok := normalizeBuildTimeUTC(firstNonEmpty(buildDate, vcs["vcs.time"])); ok {
		info.BuildTime = built
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && v != unknown {
			return v
		}
	}
	if n := len(values); n > 0 {
		return values[n-1]
	}
	return ""
}

func shortenCommit(commit string) string {
	const short = 12
	if len(commit) > short {
		return commit[:short]
	}
	return commit
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}
