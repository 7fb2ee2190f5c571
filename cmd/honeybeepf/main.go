// Command honeybeepf runs the host-resident eBPF observability agent
// described in spec.md: it loads the bundled probe bytecode, attaches
// the configured subset, and streams aggregated metrics to an OTLP
// collector until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/config"
	"github.com/honeybeepf/honeybeepf/internal/supervisor"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a honeybeepf configuration file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("honeybeepf %s (commit %s)\n", version, commit)
		return nil
	}

	log.Printf("starting honeybeepf %s (commit %s)", version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("%v", err)
		return err
	}

	if err := supervisor.Run(context.Background(), cfg); err != nil {
		log.Printf("%v", err)
		return err
	}

	log.Printf("honeybeepf: shutdown complete")
	return nil
}

// exitCodeFor maps a returned error to the process exit code spec.md
// §6 defines; an error that isn't part of the taxonomy is treated as
// unrecoverable.
func exitCodeFor(err error) int {
	var appErr *apperror.Error
	if ae, ok := err.(*apperror.Error); ok {
		appErr = ae
	}
	if appErr != nil {
		return appErr.ExitCode()
	}
	return apperror.ExitUnrecoverable
}
