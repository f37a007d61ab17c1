package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"screentime/internal/config"
	"screentime/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screentime",
	Short: "screentime - application focus time tracker",
	Long: `screentime records which application has focus, accumulates per-day
usage for each application, and reports it by day, week, month or category.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ~/.config/screentime/config.yaml)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger builds the root logger and installs it as the global one.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	logger, closer, err := logging.Setup(cfg)
	if err != nil {
		return logger, closer, err
	}
	log.Logger = logger
	return logger, closer, nil
}
