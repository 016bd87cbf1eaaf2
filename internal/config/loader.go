package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, merges, verifies and validates configuration starting at
// configPath. Files named in an include array are decoded over the result in
// order, so later files override the keys they set.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg := Defaults()
	visited := make(map[string]bool)
	rootIncludes, err := loadInto(cfg, absPath, visited, &cfg.SourceFiles)
	if err != nil {
		return nil, err
	}
	cfg.Include = rootIncludes

	if err := verifyConfigHashes(cfg.SourceFiles); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadInto decodes path over cfg and then each of its includes, depth first.
// It returns the include list declared by path itself.
func loadInto(cfg *Config, path string, visited map[string]bool, order *[]string) ([]string, error) {
	if visited[path] {
		return nil, fmt.Errorf("circular include detected: %s", path)
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	interpolated := []byte(interpolateEnv(string(data)))

	var partial struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(interpolated, &partial); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	if err := yaml.Unmarshal(interpolated, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	*order = append(*order, path)

	baseDir := filepath.Dir(path)
	for i, includePath := range partial.Include {
		resolved := includePath
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			return nil, fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s\n"+
				"Hint: Check the path is correct and the file exists", i, resolved, path)
		}
		if _, err := loadInto(cfg, resolved, visited, order); err != nil {
			return nil, fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
	}
	return partial.Include, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation reports it if the field needs a value.
		return match
	})
}
