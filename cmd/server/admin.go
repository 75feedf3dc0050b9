package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mir00r/stand-router/internal/config"
	"github.com/mir00r/stand-router/internal/middleware"
	"github.com/mir00r/stand-router/internal/router"
	"github.com/mir00r/stand-router/internal/service"
	"github.com/mir00r/stand-router/pkg/logger"
)

// Admin commands run as one-off processes against the loaded configuration.

const adminUsage = `Usage: stand-router -admin <command>
Commands:
  validate-config          - Validate configuration
  backends                 - List configured backends and their user config
  dispatch <target> <amt>  - Run one dispatch in process and print the result
  token <subject> [ttl]    - Issue an admin API token (requires admin.jwt)
`

// runConfigValidation validates the current configuration
func runConfigValidation(out io.Writer) error {
	cfg, source, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Fprintln(out, "Configuration validation passed")
	fmt.Fprintf(out, "Source: %s\n", source)
	fmt.Fprintf(out, "Port: %d\n", cfg.Server.Port)
	fmt.Fprintf(out, "Strategy: %s\n", cfg.Router.Strategy)
	fmt.Fprintf(out, "Dispatch timeout: %s\n", cfg.Router.DispatchTimeout)
	fmt.Fprintf(out, "Backends: %d\n", len(cfg.Backends))
	fmt.Fprintf(out, "Rate Limiting: %t\n", cfg.RateLimit.Enabled)
	fmt.Fprintf(out, "Admin JWT: %t\n", cfg.Admin.JWT.Enabled)
	fmt.Fprintf(out, "gRPC health: %t\n", cfg.GRPC.Enabled)

	return nil
}

// runBackends lists the configured backends
func runBackends(out io.Writer) error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(out, "Total backends: %d\n", len(cfg.Backends))
	for i, b := range cfg.Backends {
		fmt.Fprintf(out, "  Backend %d: %s (replicas: %d, default price: %v, user config: %v)\n",
			i+1, b.Name, b.Replicas, b.DefaultPrice, b.UserConfig)
	}

	return nil
}

// runDispatch starts the configured backends in process and dispatches once
func runDispatch(out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: dispatch <target> <amount>")
	}
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewNop()
	backends, err := service.BuildBackends(cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	if err := service.PushUserConfigs(cfg, backends.Registry, log); err != nil {
		return err
	}

	r := router.New(backends.Registry, router.Options{Timeout: cfg.Router.DispatchTimeout}, nil, log)
	resp, err := r.Dispatch(context.Background(), args[0], amount)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "[%s]: price for %v x %s: %v\n", resp.RequestID, amount, args[0], resp.Total)
	return nil
}

// runToken issues a bearer token for the admin API
func runToken(out io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: token <subject> [ttl]")
	}
	ttl := time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl %q: %w", args[1], err)
		}
		ttl = d
	}

	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Admin.JWT.Enabled {
		return fmt.Errorf("admin.jwt is not enabled")
	}

	jm, err := middleware.NewJWTAuthMiddleware(cfg.Admin.JWT, logger.NewNop())
	if err != nil {
		return err
	}
	token, err := jm.IssueToken(args[0], ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	return nil
}

// runAdminCommand dispatches an admin command by name
func runAdminCommand(out io.Writer, command string, args []string) error {
	switch command {
	case "validate-config", "validate":
		return runConfigValidation(out)
	case "backends", "stats":
		return runBackends(out)
	case "dispatch":
		return runDispatch(out, args)
	case "token":
		return runToken(out, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runAdminProcess handles admin process execution
func runAdminProcess() {
	idx := adminFlagIndex()
	if idx < 0 || idx+1 >= len(os.Args) {
		fmt.Print(adminUsage)
		os.Exit(1)
	}

	if err := runAdminCommand(os.Stdout, os.Args[idx+1], os.Args[idx+2:]); err != nil {
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}

// adminFlagIndex returns the position of -admin in os.Args, or -1
func adminFlagIndex() int {
	for i, arg := range os.Args {
		if arg == "-admin" {
			return i
		}
	}
	return -1
}

// checkIfAdminMode checks if running in admin mode
func checkIfAdminMode() bool {
	return adminFlagIndex() >= 0
}
