package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screentime/internal/config"
	"screentime/internal/daemon"
	"screentime/internal/probe"
	"screentime/pkg/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and the currently focused application",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("screentime version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return err
	}

	if running {
		green.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Poll Interval: %v\n", cfg.Tracker.PollInterval)
		fmt.Printf("Storage: %s\n", storageDescription(cfg))
	} else {
		yellow.Println("Status: Not running")
	}

	// Still show current window detection even when not running
	p, err := probe.New(cfg.Probe, cfg.Tracker.ProbeTimeout, zerolog.Nop())
	if err != nil {
		fmt.Printf("\nCould not detect current window: %v\n", err)
		return nil
	}

	ctx := context.Background()
	fmt.Println()
	cyan.Println("Current Window:")
	fmt.Printf("  App: %s\n", p.Probe(ctx))

	dp, ok := p.(*probe.DetectorProbe)
	if !ok {
		return nil
	}
	defer dp.Close()
	fmt.Printf("  Display: %s\n", dp.DisplayServer())

	if info, err := dp.Idle(ctx); err == nil && info != nil {
		fmt.Println()
		cyan.Println("System State:")
		fmt.Printf("  Idle: %v\n", info.IsIdle)
		fmt.Printf("  Locked: %v\n", info.IsLocked)
		if info.IdleTime > 0 {
			fmt.Printf("  Idle Time: %s\n", utils.FormatRoundedUnit(info.IdleTime))
		}
	}
	return nil
}

func storageDescription(cfg *config.Config) string {
	if cfg.Storage.Type == config.StorageRedis {
		return fmt.Sprintf("redis %s:%d/%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, cfg.Storage.Redis.DB)
	}
	path, err := cfg.StoragePath()
	if err != nil {
		return cfg.Storage.Type
	}
	return fmt.Sprintf("%s %s", cfg.Storage.Type, path)
}
