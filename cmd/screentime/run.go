package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"screentime/internal/config"
	"screentime/internal/daemon"
	"screentime/internal/probe"
	"screentime/internal/session"
	"screentime/internal/tracker"
	"screentime/internal/web"
)

const (
	daemonLogFile   = "/tmp/screentime.log"
	shutdownTimeout = 10 * time.Second
)

var (
	runWeb          bool
	runPort         int
	runPollInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track focus in the foreground",
	Long:  `Run the tracker in the foreground until interrupted. The pending session is flushed on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := trackerConfig()
		if err != nil {
			return err
		}
		return runTracker(cfg)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracking daemon in the background",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tracking daemon",
	RunE:  runStop,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, startCmd} {
		c.Flags().BoolVar(&runWeb, "web", false, "Serve the local JSON API")
		c.Flags().IntVar(&runPort, "port", 0, "Port for the JSON API (overrides web.port)")
		c.Flags().DurationVar(&runPollInterval, "poll-interval", 0, "Poll interval (overrides tracker.poll_interval)")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
}

// trackerConfig loads the configuration and applies run/start flags.
func trackerConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if runWeb {
		cfg.Web.Enabled = true
	}
	if runPort > 0 {
		if err := cfg.SetWebPort(runPort); err != nil {
			return nil, err
		}
	}
	if runPollInterval > 0 {
		if err := cfg.SetPollInterval(runPollInterval); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runTracker(cfg *config.Config) error {
	logger, closer, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	dm := daemon.New(cfg.Daemon.PIDFile)
	if running, pid, err := dm.IsRunning(); err != nil {
		return err
	} else if running && pid != os.Getpid() {
		return fmt.Errorf("tracker is already running (PID: %d)", pid)
	}
	if err := dm.WritePID(); err != nil {
		return err
	}
	defer dm.RemovePID()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to close session")
		}
	}()

	p, err := probe.New(cfg.Probe, cfg.Tracker.ProbeTimeout, logger)
	if err != nil {
		return err
	}
	if dp, ok := p.(*probe.DetectorProbe); ok {
		defer dp.Close()
		logger.Info().Str("display_server", dp.DisplayServer()).Msg("Window detector initialized")
	}

	svc := tracker.NewService(cfg.Tracker, sess.Ledger, p, logger)
	svc.OnError(sess.RecordError)

	if cfg.Web.Enabled {
		server := web.NewServer(cfg, web.NewHandler(cfg, sess.Ledger, sess.Classifier, logger), logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("Web server error")
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Error shutting down web server")
			}
		}()
	}

	logger.Info().Str("version", version).Str("storage", cfg.Storage.Type).Msg("Starting screentime")
	logger.Debug().Msgf("Configuration:\n%s", cfg.String())

	if err := svc.Start(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Tracker stopped successfully")
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := trackerConfig()
	if err != nil {
		return err
	}

	if daemon.IsChild() {
		if cfg.Logging.File == "" {
			cfg.Logging.File = daemonLogFile
		}
		return runTracker(cfg)
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}

	pid, err = daemon.Daemonize(os.Args[1:])
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Printf("Daemon started successfully (PID: %d)\n", pid)
	if cfg.Web.Enabled {
		fmt.Printf("Web API available at: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	}
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = daemonLogFile
	}
	fmt.Printf("Logs: %s\n", logFile)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		return err
	}

	// wait for the final flush to release the PID file
	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if running, _, _ := dm.IsRunning(); !running {
			color.New(color.FgGreen).Println("Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (PID: %d) did not exit within %v", pid, shutdownTimeout)
}
