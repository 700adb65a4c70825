// Package config holds the JSON configuration for a library run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const DefaultMaxRetries = 5

// NamingOptions defines the configurable naming masks for the library
// layout. Masks may reference {artist}, {album}, {track} and {title}.
type NamingOptions struct {
	AlbumFolderMask string `json:"album_folder_mask"`
	FileMask        string `json:"file_mask"`
}

// GetDefaultNamingMasks returns the default naming masks.
func GetDefaultNamingMasks() NamingOptions {
	return NamingOptions{
		AlbumFolderMask: "{artist}/{album}",
		FileMask:        "{track} - {title}",
	}
}

// Config is the persisted configuration.
type Config struct {
	LibraryLocation  string        `json:"LibraryLocation"`
	Parallelism      int           `json:"Parallelism"`
	MaxRetryAttempts int           `json:"MaxRetryAttempts"`
	ArchivePattern   string        `json:"ArchivePattern"`
	NamingMasks      NamingOptions `json:"naming"`
}

// ApplyDefaults fills in every unset field.
func (cfg *Config) ApplyDefaults() {
	if cfg.LibraryLocation == "" {
		cfg.LibraryLocation = "Library"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = DefaultMaxRetries
	}
	if cfg.ArchivePattern == "" {
		cfg.ArchivePattern = "*.zip"
	}
	defaults := GetDefaultNamingMasks()
	if cfg.NamingMasks.AlbumFolderMask == "" {
		cfg.NamingMasks.AlbumFolderMask = defaults.AlbumFolderMask
	}
	if cfg.NamingMasks.FileMask == "" {
		cfg.NamingMasks.FileMask = defaults.FileMask
	}
}

// DefaultPath returns the per-user location of the config file.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "fixvox", "config.json")
}

// CreateDirIfNotExists creates a directory if it does not exist.
func CreateDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// SaveConfig saves configuration to a JSON file.
func SaveConfig(filePath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := CreateDirIfNotExists(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
