package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/henricj/fixvox/internal/batch"
	"github.com/henricj/fixvox/internal/config"
	"github.com/henricj/fixvox/internal/mp3"
	"github.com/henricj/fixvox/internal/tagfix"
	"github.com/henricj/fixvox/internal/workdir"
)

const toolVersion = "1.0.0"

var (
	configPath  string
	libraryPath string
	parallelism int
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:     "fixvox",
	Version: toolVersion,
	Short:   "Batch-convert archives of MP3 tracks into a tagged, renamed library.",
	Long: `FixVox unpacks zip archives of MP3 tracks, repairs their ID3v2 metadata
(titles, artists, track numbers, playback length) and files the tracks
into a clean library layout.`,
}

var processCmd = &cobra.Command{
	Use:   "process [files or directories...]",
	Short: "Process archives into the library.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadRunConfig()
		logger := newLogger()

		cache, err := workdir.New("fixvox", cfg.MaxRetryAttempts, logger)
		if err != nil {
			colorError.Printf("Failed to create working directory scope: %v\n", err)
			os.Exit(1)
		}

		fixer := tagfix.New(cfg, logger)
		processor := batch.New(cache, logger, batch.Options{
			Parallelism: cfg.Parallelism,
			Pattern:     cfg.ArchivePattern,
			Progress:    isTTY() && !debug,
		})

		done, err := processor.Process(context.Background(), args, fixer.Transform)
		cache.Close(context.Background())

		if len(done) == 0 && err == nil {
			colorWarning.Println("No files were processed.")
			return
		}
		colorInfo.Printf("Processed %d file(s) into %s\n", len(done), cfg.LibraryLocation)
		for _, path := range done {
			colorSuccess.Println("  " + path)
		}
		if err != nil {
			colorError.Printf("Batch finished with a failure: %v\n", err)
			os.Exit(1)
		}
	},
}

var durationCmd = &cobra.Command{
	Use:   "duration [files...]",
	Short: "Print the playback duration of MP3 files.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed := false
		for _, path := range args {
			d, err := measurePath(path)
			if err != nil {
				colorError.Printf("%s: %v\n", path, err)
				failed = true
				continue
			}
			colorInfo.Printf("%s: %s\n", path, formatDuration(d))
		}
		if failed {
			os.Exit(1)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or show the configuration file.",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		var cfg config.Config
		if err := config.LoadConfig(path, &cfg); err != nil {
			cfg.ApplyDefaults()
			if err := config.SaveConfig(path, &cfg); err != nil {
				colorError.Printf("Failed to write default config: %v\n", err)
				os.Exit(1)
			}
			colorSuccess.Printf("Wrote default configuration to %s\n", path)
			return
		}
		colorInfo.Printf("Configuration loaded from %s\n", path)
	},
}

// loadRunConfig loads the config file if one exists, applies CLI
// overrides and fills in defaults.
func loadRunConfig() *config.Config {
	var cfg config.Config
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.LoadConfig(path, &cfg); err != nil && configPath != "" {
		// An explicitly requested config file must exist.
		colorError.Printf("Failed to load config %s: %v\n", configPath, err)
		os.Exit(1)
	}
	if libraryPath != "" {
		cfg.LibraryLocation = libraryPath
	}
	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}
	cfg.ApplyDefaults()
	return &cfg
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func measurePath(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return mp3.Measure(f)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	processCmd.Flags().StringVarP(&libraryPath, "library", "l", "", "Library output location (overrides config)")
	processCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Concurrent file limit (overrides config)")
	rootCmd.AddCommand(processCmd, durationCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
