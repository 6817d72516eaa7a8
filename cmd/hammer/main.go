// Package main runs the Hammer browser automation service: one shared
// browser process, many isolated sessions, driven over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/hammer/pkg/config"
	"github.com/entrhq/hammer/pkg/lifecycle"
	"github.com/entrhq/hammer/pkg/logging"
	"github.com/entrhq/hammer/pkg/server"
)

const version = "4.0.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Host        string
	Port        int
	Driver      string
	LogLevel    string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("Hammer v%s\n", version)
		return
	}

	if err := run(cli); err != nil {
		log.Printf("Hammer failed: %v", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.Host, "host", "", "Listen host (overrides config)")
	flag.IntVar(&cli.Port, "port", 0, "Listen port (overrides config)")
	flag.StringVar(&cli.Driver, "driver", "", "Driver backend: playwright or chromedp (overrides config)")
	flag.StringVar(&cli.LogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Hammer - Browser automation sessions over HTTP\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hammer [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  HAMMER_HOST, HAMMER_PORT, HAMMER_DRIVER, HAMMER_HEADLESS,\n")
		fmt.Fprintf(os.Stderr, "  HAMMER_LOG_LEVEL, HAMMER_MAX_SESSIONS, HAMMER_IDLE_TIMEOUT\n")
	}

	flag.Parse()
	return cli
}

// loadConfig resolves defaults, then the file, then the environment, then flags.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.Host != "" {
		cfg.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}
	if cli.Driver != "" {
		cfg.Driver.Backend = config.Backend(cli.Driver)
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Sync() }()

	logger := logging.NewLogger("main")
	logger.Infof("Hammer v%s starting", version)

	manager, err := lifecycle.Start(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, manager, version)
	if err != nil {
		_ = manager.Shutdown(context.Background())
		return err
	}

	serveErr, err := srv.Start()
	if err != nil {
		_ = manager.Shutdown(context.Background())
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server stopped: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first so no command races the session teardown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	if err := manager.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.Infof("Hammer stopped")
	return runErr
}
