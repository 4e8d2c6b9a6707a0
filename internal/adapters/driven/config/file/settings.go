// Package file holds the file-based configuration adapters: TOML
// pipeline settings and the YAML entity dictionary with its change
// watcher.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// DefaultConfigDir returns the docforge configuration directory.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".docforge"), nil
}

// SettingsPath returns the settings file path inside configDir.
// If configDir is empty, defaults to ~/.docforge/config.toml.
func SettingsPath(configDir string) (string, error) {
	if configDir == "" {
		var err error
		configDir, err = DefaultConfigDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadSettings reads pipeline settings from the TOML file. A missing
// file yields the defaults; zero values in the file are filled in.
func LoadSettings(configDir string) (domain.Settings, error) {
	path, err := SettingsPath(configDir)
	if err != nil {
		return domain.Settings{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	var settings domain.Settings
	if err := toml.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return settings.Normalised(), nil
}

// SaveSettings persists settings to the TOML file, creating the config
// directory if needed.
func SaveSettings(configDir string, settings domain.Settings) error {
	path, err := SettingsPath(configDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	// Write with restricted permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
