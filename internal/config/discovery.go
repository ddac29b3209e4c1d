package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "IRQD_CONFIG"

// Discover finds a config file by checking standard locations.
// Priority order: $IRQD_CONFIG, ~/.config/irqd/config.yaml,
// /etc/irqd/config.yaml, ./config.yaml. It returns "" when none exists.
func Discover() string {
	for _, candidate := range searchPath() {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func searchPath() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "irqd", "config.yaml"))
	}
	return append(paths, "/etc/irqd/config.yaml", "./config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
