package config

import (
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.LibraryLocation == "" {
		t.Error("LibraryLocation should have a default")
	}
	if cfg.Parallelism <= 0 {
		t.Error("Parallelism should default to a positive value")
	}
	if cfg.MaxRetryAttempts != DefaultMaxRetries {
		t.Errorf("MaxRetryAttempts = %d, want %d", cfg.MaxRetryAttempts, DefaultMaxRetries)
	}
	if cfg.ArchivePattern != "*.zip" {
		t.Errorf("ArchivePattern = %q, want *.zip", cfg.ArchivePattern)
	}
	if cfg.NamingMasks.FileMask == "" || cfg.NamingMasks.AlbumFolderMask == "" {
		t.Error("naming masks should have defaults")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		LibraryLocation: "/music",
		Parallelism:     2,
		NamingMasks:     NamingOptions{FileMask: "{title}"},
	}
	cfg.ApplyDefaults()

	if cfg.LibraryLocation != "/music" {
		t.Errorf("LibraryLocation overwritten: %q", cfg.LibraryLocation)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("Parallelism overwritten: %d", cfg.Parallelism)
	}
	if cfg.NamingMasks.FileMask != "{title}" {
		t.Errorf("FileMask overwritten: %q", cfg.NamingMasks.FileMask)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	want := Config{
		LibraryLocation:  "/music/library",
		Parallelism:      3,
		MaxRetryAttempts: 7,
		ArchivePattern:   "*.zip",
		NamingMasks:      GetDefaultNamingMasks(),
	}
	if err := SaveConfig(path, &want); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	var got Config
	if err := LoadConfig(path, &got); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg Config
	if err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), &cfg); err == nil {
		t.Error("expected error for missing config file")
	}
}
