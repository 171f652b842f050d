package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/coffersTech/filelog/internal/cli"
)

func main() {
	// SIGINT/SIGTERM cancel the context: serve shuts down gracefully, a
	// follow stops, and open registries are closed by the commands.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
