// Package main is the entry point for the hostkeep command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/hostkeep/internal/cli"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &cli.Runner{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
	return r.Execute(ctx, os.Args[1:])
}
