//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/pkg/config"
	"github.com/lyhellcat/TinyWebServer/pkg/server"
)

const usage = `TinyWebServer - epoll based static file web server

Usage:
  tinywebserver <command> [flags]

Commands:
  init    Generate a sample configuration file
  start   Start the server

Flags for init:
  --config string   Path to config file (default: $XDG_CONFIG_HOME/tinywebserver/config.yaml)
  --force           Overwrite an existing config file

Flags for start:
  --config string   Path to config file (default: $XDG_CONFIG_HOME/tinywebserver/config.yaml)

Environment variables override file values, e.g.:
  TINYWEBSERVER_LOGGING_LEVEL=DEBUG
  TINYWEBSERVER_ADAPTERS_HTTP_PORT=9006
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit it, then run: tinywebserver start")
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		QueueSize: cfg.Logging.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Close() }()
	logger.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("TinyWebServer starting")
	logger.Info("Log level: %s, format: %s", cfg.Logging.Level, cfg.Logging.Format)

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if err := config.PrepareDocumentRoot(ctx, &cfg.DocumentRoot, metricsResult.DocrootMetrics); err != nil {
		return fmt.Errorf("failed to prepare document root: %w", err)
	}
	logger.Info("Document root: %s (source: %s)", cfg.DocumentRoot.Path, cfg.DocumentRoot.Source)

	store, err := config.CreateCredentialStore(ctx, &cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close credential store: %v", err)
		}
	}()
	logger.Info("Credential store: %s", cfg.Credentials.Type)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics, log)
	if err != nil {
		return err
	}

	srv := server.New(store, cfg.Server.ShutdownTimeout, log)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
