package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/raaihank/flowpaste/internal/api"
	"github.com/raaihank/flowpaste/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchConfig bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	RunE:  runServe,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running server and exit non-zero if it is unhealthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		url := fmt.Sprintf("http://%s/health", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))

		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "Reload detectors and rules when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting flowpaste",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFile()),
		zap.Int("port", cfg.Server.Port),
	)

	server, err := api.New(cfg, log, version)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if watchConfig && loader.ConfigFile() != "" {
		loader.Watch(func(next *config.Config) {
			if err := server.Reload(next); err != nil {
				log.Error("Failed to apply configuration change", zap.Error(err))
			}
		}, func(err error) {
			log.Warn("Ignoring configuration change", zap.Error(err))
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
			return err
		}
		return nil
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			return err
		}

		log.Info("Server shutdown complete")
		return nil
	}
}
