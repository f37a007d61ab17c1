package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screentime/internal/config"
	"screentime/internal/daemon"
	"screentime/internal/session"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded usage",
	Long:  `Delete all recorded usage. Category assignments are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not prompt for confirmation")
	rootCmd.AddCommand(clearCmd)
}

func newDaemon(cfg *config.Config) *daemon.Daemon {
	return daemon.New(cfg.Daemon.PIDFile)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid, err := daemonStatus(cfg); err != nil {
		return err
	} else if running {
		return fmt.Errorf("tracker is running (PID: %d); stop it before clearing", pid)
	}

	if !clearYes {
		fmt.Print("This will delete all tracking data. Are you sure? (yes/no): ")
		response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "yes" && response != "y" {
			fmt.Println("Operation cancelled")
			return nil
		}
	}

	ctx := context.Background()
	sess, err := session.Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := sess.Clear(ctx); err != nil {
		return err
	}

	color.New(color.FgGreen).Println("Usage data cleared successfully")
	return nil
}
