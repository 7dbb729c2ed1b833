// Command lokilog-demo sends one info and one error record to the Loki
// instance named in the configuration file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/lokilog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	name := flag.String("name", "YourAppName", "Logger name, used as the default context")
	flag.Parse()

	logger.GetAppLogger().SetLogLevel(logger.INFO)

	log, err := lokilog.NewFromFile(*name, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Info("This is an info message", lokilog.Meta{OrgID: "org123", BotID: "bot456"})
	log.Error("An error occurred", lokilog.Meta{OrgID: "org789", BotID: "bot012", Trace: "Error stack trace"})
}
