package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccpd/signboard/internal/digest"
)

// ChecksumFile is the manifest name written next to config files.
const ChecksumFile = ".checksums"

// ChecksumManifest maps config file basenames to BLAKE3 digests.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// HashUpdateFileResult captures checksum generation outcome for one file.
type HashUpdateFileResult struct {
	Path string
	Hash string
}

// HashUpdateReport captures checksum generation details for a config tree.
type HashUpdateReport struct {
	Written   bool
	Manifests []string
	Files     []HashUpdateFileResult
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := digest.File(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// Lock hashes every file in the include tree rooted at configPath and writes
// one .checksums per directory. With dryRun nothing is written.
func Lock(configPath string, dryRun bool) (*HashUpdateReport, error) {
	files, err := ConfigFiles(configPath)
	if err != nil {
		return nil, err
	}

	report := &HashUpdateReport{}
	byDir := groupByDir(files)
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		manifest := ChecksumManifest{
			Version:     1,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Hashes:      make(map[string]string),
		}
		for _, path := range byDir[dir] {
			hash, err := digest.File(path)
			if err != nil {
				return nil, fmt.Errorf("failed to hash %s: %w", path, err)
			}
			manifest.Hashes[filepath.Base(path)] = hash
			report.Files = append(report.Files, HashUpdateFileResult{Path: path, Hash: hash})
		}

		checksumPath := filepath.Join(dir, ChecksumFile)
		report.Manifests = append(report.Manifests, checksumPath)
		if dryRun {
			continue
		}
		data, err := yaml.Marshal(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal checksums: %w", err)
		}
		// Contains expected hashes; keep it private.
		if err := os.WriteFile(checksumPath, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write checksums: %w", err)
		}
	}
	report.Written = !dryRun
	return report, nil
}

// ConfigFiles returns the absolute paths of configPath and every file it
// includes, in merge order.
func ConfigFiles(configPath string) ([]string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	var order []string
	if _, err := loadInto(Defaults(), absPath, make(map[string]bool), &order); err != nil {
		return nil, err
	}
	return order, nil
}

// LoadChecksums reads the .checksums file from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'signboard config lock'): %w", err)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyConfigHashes checks files against the manifest in their directory.
// Directories without a manifest are not verified.
func verifyConfigHashes(paths []string) error {
	for dir, files := range groupByDir(paths) {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}

		for _, path := range files {
			basename := filepath.Base(path)
			expectedHash, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: signboard config lock", basename, dir)
			}
			if err := VerifyFileHash(path, expectedHash); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: signboard config lock", path, err)
			}
		}
	}
	return nil
}

func groupByDir(paths []string) map[string][]string {
	out := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		out[dir] = append(out[dir], path)
	}
	return out
}
