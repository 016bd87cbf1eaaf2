package config

import (
	"fmt"
	"os"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "SIGNBOARD_CONFIG"

// Discover finds the config file.
// Priority order: explicit path (--config), $SIGNBOARD_CONFIG, ./config.yaml.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if fileExists("config.yaml") {
		return "config.yaml", nil
	}
	return "", fmt.Errorf("no config found (checked: --config, $%s, ./config.yaml)", EnvConfigPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
