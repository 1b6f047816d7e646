package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"leecher/internal/config"
	"leecher/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string

	cfg       *config.Config
	logger    *zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "leecher",
	Short: "Shotgrid to Avalon hierarchy sync",
	Long: `leecher mirrors Shotgrid project hierarchies into the Avalon project
database. Projects are scheduled once and re-synced by a periodic drain of
the schedule queue; every drained item leaves a log entry.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if loaded.App.Version == "" {
			loaded.App.Version = Version
		}

		base, closer, err := logging.New(loaded.Logging, loaded.App)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		cfg, logger, logCloser = loaded, base, closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to config.yaml (env CONFIG_PATH)")
}

// printJSON пишет v с отступами
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
