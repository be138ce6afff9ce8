package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppConfigDir = ".config/plaza"
)

// GetConfigDir returns the plaza config directory path (~/.config/plaza/)
// and creates it if it doesn't exist
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, AppConfigDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// ResolveFilePath resolves a file path with the following priority:
// 1. Local working directory (e.g., ./database.db)
// 2. User config directory (e.g., ~/.config/plaza/database.db)
// 3. Returns the user config directory path if neither exists (for creation)
//
// Absolute paths and ":memory:" are returned as given.
func ResolveFilePath(filename string) string {
	if filename == ":memory:" || filepath.IsAbs(filename) {
		return filename
	}

	if _, err := os.Stat(filename); err == nil {
		return filename
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return filename
	}

	return filepath.Join(configDir, filename)
}
