package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/railtracker-live/internal/archive"
	"github.com/railtracker-live/internal/common/alert"
	"github.com/railtracker-live/internal/common/config"
	"github.com/railtracker-live/internal/common/db"
	"github.com/railtracker-live/internal/common/logger"
	"github.com/railtracker-live/internal/metrics"
	"github.com/railtracker-live/internal/monitor"
)

func main() {
	// Load .env if present; flags and the environment drive everything else.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	var runtimeS int

	rootCmd := &cobra.Command{
		Use:           "railtracker",
		Short:         "Live rail-network monitor consuming the passenger-event feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("runtime_s") {
				cfg.Monitor.Runtime = time.Duration(runtimeS) * time.Second
			}
			return run(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Monitor.URL, "url", cfg.Monitor.URL, "Host of the messaging endpoint")
	flags.StringVar(&cfg.Monitor.Endpoint, "endpoint", cfg.Monitor.Endpoint, "WebSocket path on the server")
	flags.StringVar(&cfg.Monitor.Port, "port", cfg.Monitor.Port, "Port of the messaging endpoint")
	flags.StringVar(&cfg.Monitor.Username, "username", cfg.Monitor.Username, "STOMP username")
	flags.StringVar(&cfg.Monitor.Password, "password", cfg.Monitor.Password, "STOMP password")
	flags.StringVar(&cfg.Monitor.StompEndpoint, "stomp_endpoint", cfg.Monitor.StompEndpoint, "Subscription destination")
	flags.StringVar(&cfg.Monitor.CertPath, "cert_path", cfg.Monitor.CertPath, "PEM trust store for TLS verification")
	flags.StringVar(&cfg.Monitor.NetworkLayoutPath, "network_layout_path", cfg.Monitor.NetworkLayoutPath, "Path or URL of the JSON network layout")
	flags.IntVar(&runtimeS, "runtime_s", int(cfg.Monitor.Runtime/time.Second), "Stop after this many seconds (0 runs until interrupted)")

	// Asking for usage is not a monitoring run.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprint(os.Stdout, cmd.UsageString())
		os.Exit(1)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Monitor.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewWithLevel(
		cfg.Logging.Level,
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("Rail tracker starting",
		"url", cfg.Monitor.URL,
		"port", cfg.Monitor.Port,
		"stomp_endpoint", cfg.Monitor.StompEndpoint,
		"runtime_s", strconv.Itoa(int(cfg.Monitor.Runtime/time.Second)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		cancel()
	}()

	if cfg.Metrics.Addr != "" {
		go metrics.Serve(ctx, cfg.Metrics.Addr, log)
	}

	mon := monitor.New(cfg.Monitor, log)
	mon.AttachAlerts(alert.NewClient(cfg.AlertURL))

	if cfg.Archive.Enabled() {
		database, err := db.New(cfg.Archive.ConnectionString(), log)
		if err != nil {
			return fmt.Errorf("connecting archive database: %w", err)
		}
		defer database.Close()

		arch, err := archive.New(database, cfg.Archive.Retention, log)
		if err != nil {
			return err
		}
		go arch.RunCleanup(ctx)
		mon.AttachArchive(arch)
		log.Info("Passenger-event archive enabled", "retention", cfg.Archive.Retention)
	}

	if err := mon.Configure(ctx); err != nil {
		return fmt.Errorf("configuring monitor: %w", err)
	}
	if err := mon.Run(ctx); err != nil {
		return fmt.Errorf("monitor terminated: %w", err)
	}

	log.Info("Rail tracker stopped")
	return nil
}
