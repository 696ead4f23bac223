package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	orbitcmd "github.com/orbit-cli/orbit/pkg/orbit/cmd"
	"github.com/orbit-cli/orbit/pkg/orbit/output"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := orbitcmd.DefaultConfig()
	cfg.Context = ctx
	root := orbitcmd.NewRootCommand(cfg)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, output.Failure.Render("Error:"), orbitcmd.FormatError(err))
		stop()
		os.Exit(1)
	}
}
