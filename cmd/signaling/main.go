package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/handlers"
	"github.com/mossy-p/signaling-relay/internal/live"
	"github.com/mossy-p/signaling-relay/internal/logging"
	"github.com/mossy-p/signaling-relay/internal/mailbox"
	"github.com/mossy-p/signaling-relay/internal/presence"
	"github.com/mossy-p/signaling-relay/internal/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       string
	)

	cmd := &cobra.Command{
		Use:   "signaling",
		Short: "WebRTC signaling relay",
		Long: `Relays WebRTC session negotiation between peers in the same room.
Peers can poll a mailbox over HTTP (/api/signal) or hold a websocket (/ws/signal).`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (env vars are used when empty)")
	cmd.Flags().StringVar(&port, "port", "", "listen port, overrides PORT and the config file")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load(), nil
	}
	return config.LoadFile(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logging.Init(cfg.LogLevel)

	pollingObserver := presence.Observer(presence.Nop{})
	liveObserver := presence.Observer(presence.Nop{})
	if cfg.Redis.Enabled() {
		mirror, err := redis.Connect(cfg.Redis)
		if err != nil {
			return err
		}
		defer mirror.Close()
		pollingObserver = mirror.Observer("polling")
		liveObserver = mirror.Observer("live")
		slog.Info("redis presence mirror enabled", "host", cfg.Redis.Host)
	}

	registry := mailbox.NewRegistry(cfg.Rooms.TTL, mailbox.WithObserver(pollingObserver))
	hub := live.NewHub(live.WithObserver(liveObserver))

	go mailbox.NewReaper(registry, cfg.Rooms.SweepInterval).Run(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, handlers.New(cfg, registry, hub))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting signaling relay", "port", cfg.Port, "room_ttl", cfg.Rooms.TTL, "admin", cfg.Admin.Enabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
