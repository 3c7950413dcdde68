package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mossy-p/screenview-signaling/config"
	"github.com/mossy-p/screenview-signaling/internal/discovery"
	"github.com/mossy-p/screenview-signaling/internal/logging"
	"github.com/mossy-p/screenview-signaling/internal/redis"
	"github.com/mossy-p/screenview-signaling/internal/server"
	"github.com/mossy-p/screenview-signaling/internal/session"
)

func main() {
	// Load configuration
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "signaling",
		Short: "Signaling relay for peer-to-peer screen viewing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on (0 picks a free port)")
	cmd.Flags().BoolVar(&cfg.MDNS.Enabled, "mdns", cfg.MDNS.Enabled, "Announce the server on the local network")
	cmd.Flags().BoolVar(&cfg.Redis.Enabled, "redis", cfg.Redis.Enabled, "Mirror room presence into Redis")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.Init(cfg.LogLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []server.Option{server.WithLogger(logger)}

	if cfg.Redis.Enabled {
		presence, err := redis.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer presence.Close()
		logger.Info("Redis connection established", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
		opts = append(opts, server.WithPresence(presence))
	}

	if cfg.MDNS.Enabled {
		opts = append(opts, server.WithAnnouncer(&discovery.MDNSAdapter{}, discovery.ServiceInfo{
			Name:   cfg.MDNS.Name,
			Type:   cfg.MDNS.Type,
			Domain: cfg.MDNS.Domain,
			Text:   map[string]string{"path": "/ws"},
		}))
	}

	srv := server.New(server.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Session: session.Config{
			WriteWait:      cfg.Session.WriteWait,
			PongWait:       cfg.Session.PongWait,
			PingPeriod:     cfg.Session.PingPeriod,
			MaxMessageSize: cfg.Session.MaxMessageSize,
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
		RequestLog:      !cfg.IsProduction(),
	}, opts...)

	port, err := srv.Start(cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("Listening for signaling connections", "url", fmt.Sprintf("ws://0.0.0.0:%d/", port))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutdown signal received")
	return srv.Stop()
}
