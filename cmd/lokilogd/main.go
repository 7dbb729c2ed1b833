package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/lokilog"
	"github.com/orgoj/lokilog/internal/server"
	"github.com/orgoj/lokilog/internal/version"
)

func main() {
	// --- Configuration --- //
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	testConfigShort := flag.Bool("t", false, "Test configuration and exit (nginx style)")
	testConfigLong := flag.Bool("test", false, "Test configuration and exit (nginx style)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.VersionInfo())
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("[CRITICAL] Failed to load configuration from '%s': %v\n", *configPath, err)
		os.Exit(1)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("[CRITICAL] Configuration validation failed for '%s':\n%v\n", *configPath, err)
		os.Exit(1)
	}

	if *testConfigShort || *testConfigLong {
		fmt.Printf("Configuration '%s' is valid.\n", *configPath)
		os.Exit(0)
	}

	if !cfg.Relay.Enabled {
		fmt.Printf("[CRITICAL] relay.enabled is false in '%s', nothing to serve\n", *configPath)
		os.Exit(1)
	}

	// --- Application logger --- //
	out, err := logger.OpenOutput(cfg.AppLog.Path, cfg.AppLog.Rotation)
	if err != nil {
		fmt.Printf("[CRITICAL] Failed to open app log output: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	appLogger := logger.GetAppLogger()
	appLogger.SetOutput(out)
	if err := appLogger.SetFormat(cfg.AppLog.Format); err != nil {
		fmt.Printf("[WARN] Invalid log format '%s', using text: %v\n", cfg.AppLog.Format, err)
	}
	if err := appLogger.SetLogLevelFromString(cfg.AppLog.Level); err != nil {
		fmt.Printf("[WARN] Invalid log level '%s', using default: %v\n", cfg.AppLog.Level, err)
	}

	appLogger.SetShowHealth(cfg.AppLog.ShowHealthLogs)

	appLogger.Warn("%s", version.VersionInfo())

	// --- Dependency Initialization --- //
	manager, err := lokilog.NewManager(lokilog.SettingsFromConfig(cfg), lokilog.WithSink(appLogger))
	if err != nil {
		appLogger.Fatal("Failed to initialize Loki client: %v", err)
	}
	appLogger.Info("Forwarding to %s (env %s)", manager.PushURL(), cfg.App.Environment)

	srv := server.NewServer(server.Dependencies{
		Config:    cfg,
		Manager:   manager,
		AppLogger: appLogger,
	})

	// --- Graceful Shutdown --- //
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error: %v", err)
		out.Close()
		os.Exit(1)
	}

	appLogger.Info("lokilog relay shut down gracefully.")
}
