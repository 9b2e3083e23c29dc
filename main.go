package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipforge/clipforge/internal"
	"github.com/clipforge/clipforge/pkg/logger"
)

var log = logger.Get("Main")

// main loads the service configuration (from the YAML file at
// -config if provided, otherwise purely from the environment) and
// runs the server until an interrupt arrives.
func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional)")
	verbose := flag.Bool("verbose", false, "enable verbose log output")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	}

	config := internal.Config{}
	var err error
	if *configPath != "" {
		err = config.LoadFromFile(*configPath)
	} else {
		err = config.LoadFromEnv()
	}
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	exitChannel := make(chan os.Signal, 1)
	signal.Notify(exitChannel, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-exitChannel
		log.Emit(logger.STOP, "Interrupt caught! Shutting down...\n")
		cancel()
	}()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Service failed: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Shutdown complete\n")
}
