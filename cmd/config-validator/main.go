package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/logger"
)

func main() {
	flag.Parse()

	if len(flag.Args()) < 1 {
		fmt.Println("Error: Config file path is required")
		fmt.Println("Usage: config-validator <config-file>")
		os.Exit(1)
	}
	configPath := flag.Args()[0]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}

	// Opening the output catches unwritable log paths before deployment.
	out, err := logger.OpenOutput(cfg.AppLog.Path, cfg.AppLog.Rotation)
	if err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}
	_ = out.Close()

	fmt.Printf("Configuration is valid! Pushing to %s as env '%s'.\n", cfg.Loki.BaseURL, cfg.App.Environment)
}
