// Package main is the webtest command: it runs LLM-driven browser test
// sessions and inspects their reports and token usage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("webtest"),
		kong.Description("Multi-role LLM browser testing."),
		kong.UsageOnError(),
		kongVars(),
	)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli.Globals)
	stop()
	kctx.FatalIfErrorf(err)
}
