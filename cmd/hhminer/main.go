package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"heavyhash.dev/miner/internal/interfaces/cli"
	"heavyhash.dev/miner/internal/interfaces/di"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	container, err := di.NewContainer(ctx, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	code := 0
	if err := cli.Execute(ctx, container.GetCLIContainer(), args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}
	if err := container.Shutdown(); err != nil {
		container.Logger.Error("error during shutdown", "error", err)
		code = 1
	}
	return code
}
