package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screentime/internal/probe"
	"screentime/pkg/utils"
)

var (
	probeDuration time.Duration
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print what the focus probe reports on every tick",
	Long: `Sample the configured focus probe without recording anything. Switch between
applications while it runs to check detection.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeDuration, "duration", 30*time.Second, "How long to sample")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", 2*time.Second, "Time between samples")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if probeInterval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	p, err := probe.New(cfg.Probe, cfg.Tracker.ProbeTimeout, logger)
	if err != nil {
		return err
	}

	var dp *probe.DetectorProbe
	if d, ok := p.(*probe.DetectorProbe); ok {
		dp = d
		defer dp.Close()
		fmt.Printf("Display Server: %s\n", dp.DisplayServer())
	}
	fmt.Printf("Sampling every %v for %v\n\n", probeInterval, probeDuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, probeDuration)
	defer cancel()

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	count := 0

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nSampling completed")
			return nil

		case <-ticker.C:
			count++
			name := p.Probe(ctx)
			fmt.Printf("[%d] %s\n", count, utils.Truncate(name, 60))

			if dp == nil {
				continue
			}
			if err := dp.LastError(); err != nil {
				red.Printf("     Error: %v\n", err)
			}
			if info, err := dp.Idle(ctx); err == nil && info != nil && (info.IsIdle || info.IsLocked) {
				yellow.Printf("     System: Idle=%v, Locked=%v\n", info.IsIdle, info.IsLocked)
			}
		}
	}
}
