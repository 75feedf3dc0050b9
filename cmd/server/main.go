package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mir00r/stand-router/internal/config"
	"github.com/mir00r/stand-router/internal/handler"
	"github.com/mir00r/stand-router/internal/middleware"
	"github.com/mir00r/stand-router/internal/router"
	"github.com/mir00r/stand-router/internal/service"
	"github.com/mir00r/stand-router/pkg/logger"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if checkIfAdminMode() {
		runAdminProcess()
		return
	}

	cfg, source, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, source, log); err != nil {
		log.WithError(err).Fatal("Stand router failed")
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
}

// run starts every backend and server and blocks until ctx is cancelled
// or a server fails
func run(ctx context.Context, cfg *config.Config, source string, log *logger.Logger) error {
	log.WithFields(map[string]interface{}{
		"version":          version,
		"port":             cfg.Server.Port,
		"strategy":         cfg.Router.Strategy,
		"dispatch_timeout": cfg.Router.DispatchTimeout.String(),
		"backends":         len(cfg.Backends),
		"config_source":    source,
		"process":          getProcessInfo(),
	}).Info("Starting stand router")

	backends, err := service.BuildBackends(cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	if err := service.PushUserConfigs(cfg, backends.Registry, log.ConfigLogger()); err != nil {
		return fmt.Errorf("failed to apply user config: %w", err)
	}

	metrics := service.NewMetrics()
	dispatcher := router.New(backends.Registry, router.Options{Timeout: cfg.Router.DispatchTimeout}, metrics, log)

	var reloader handler.Reloader
	if source == "file" {
		crs := service.NewConfigReloadService(cfg, backends.Registry, config.ConfigFile(), log)
		if cfg.Reload.Enabled {
			if err := crs.StartWatcher(); err != nil {
				return err
			}
			defer crs.StopWatcher()
		}
		reloader = crs
	}

	healthHandler := handler.NewHealthHandler(backends.Registry, version)
	routes := handler.Routes{
		Dispatch: handler.NewDispatchHandler(dispatcher, metrics, log, cfg.Router.LegacyNotFound),
		Health:   healthHandler,
	}

	if cfg.Admin.Enabled {
		routes.Admin = handler.NewAdminHandler(backends.Registry, reloader, metrics, log)
		routes.AdminPrefix = cfg.Admin.PathPrefix
		if cfg.Admin.JWT.Enabled {
			jm, err := middleware.NewJWTAuthMiddleware(cfg.Admin.JWT, log)
			if err != nil {
				return err
			}
			routes.AdminAuth = jm.JWTAuth()
		}
	}

	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit, log)
		routes.DispatchMiddleware = append(routes.DispatchMiddleware, rl.RateLimitMiddleware())
		log.Info("Rate limiting enabled")
	}

	var h http.Handler = middleware.Chain(handler.NewRouter(routes),
		middleware.RecoveryMiddleware(log),
		middleware.LoggingMiddleware(log),
		middleware.SecurityHeadersMiddleware(),
	)
	if cfg.Server.EnableH2C {
		h = h2c.NewHandler(h, &http2.Server{})
		log.Info("HTTP/2 cleartext enabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	var grpcHealth *handler.GRPCHealthServer
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			server.Close()
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		grpcServer = grpc.NewServer()
		grpcHealth = handler.NewGRPCHealthServer(backends.Registry, log)
		grpcHealth.Register(grpcServer)

		go func() {
			log.WithField("port", cfg.GRPC.Port).Info("Starting gRPC health server")
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC server failed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		log.WithError(runErr).Error("Server failed, shutting down")
	}

	healthHandler.SetShuttingDown()
	if grpcHealth != nil {
		grpcHealth.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Info("Stand router stopped gracefully")
	return runErr
}
