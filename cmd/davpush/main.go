package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ning0612/davpush/internal/cli"
	"github.com/Ning0612/davpush/internal/logger"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand(Version).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "davpush:", err)
	}
	logger.Shutdown()
	os.Exit(cli.ExitCode(err))
}
