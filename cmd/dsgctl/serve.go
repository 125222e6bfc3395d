package main

import (
	"context"
	"dsg-rpc/command"
	"dsg-rpc/config"
	"dsg-rpc/metrics"
	"dsg-rpc/middleware"
	"dsg-rpc/object"
	"dsg-rpc/server"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a device router that answers the built-in commands from memory",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address, overrides server.listen")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Server.Listen = flagListen
	}
	logger := setupLogger(cfg, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	return serve(ctx, cfg, ln, logger)
}

// serve runs a router on ln until ctx ends.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, logger zerolog.Logger) error {
	hasher, err := object.HasherByName(cfg.Hasher)
	if err != nil {
		_ = ln.Close()
		return err
	}
	reg, err := cfg.Registry.Open()
	if err != nil {
		_ = ln.Close()
		return err
	}
	if reg != nil {
		defer reg.Close()
	}

	svc := server.NewCommandService(cfg.DecID, cfg.Server.OwnerID,
		server.WithServiceHasher(hasher),
		server.WithServiceLogger(logger),
	)
	server.RegisterMinerCommands(svc, server.NewMemoryMiner())

	svr := server.NewServer(cfg.Server.DeviceID,
		server.WithLogger(logger),
		server.WithRegistrationTTL(cfg.Server.TTL),
	)
	svr.Use(middleware.LoggingMiddleware(logger))
	svr.Use(middleware.MetricsMiddleware())
	if cfg.Server.Timeout > 0 {
		svr.Use(middleware.TimeoutMiddleware(cfg.Server.Timeout))
	}
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.Burst))
	}
	svr.Handle(command.ReqPath, svc)

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint stopped")
			}
		}()
	}

	served := make(chan error, 1)
	go func() { served <- svr.Serve(ln, cfg.Server.Advertise, reg) }()

	select {
	case err := <-served:
		return err
	case <-svr.Ready():
	}
	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := svr.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-served
}
