package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/tapewatch/internal/app"
	"github.com/bobmcallan/tapewatch/internal/common"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: TAPEWATCH_CONFIG, then tapewatch.toml beside the binary)")
		watch      = flag.Bool("watch", false, "keep scanning on an interval instead of exiting after one pass")
		interval   = flag.Duration("interval", 5*time.Minute, "scan interval in watch mode")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("tapewatch %s (build %s, commit %s)\n",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return
	}

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	common.PrintBanner(a.Config, a.Logger)

	// Cancel on interrupt so in-flight symbols finish and the cache flushes
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		a.RunScanLoop(ctx, *interval, emitResult(a))
		return
	}

	batch, errs := a.Orchestrator.ScanBatch(ctx, a.Config.Watchlist, a.Config.Scanner.MaxAlerts)
	emitResult(a)(&app.ScanResult{Batch: batch, Errors: errs})

	if len(batch.Alerts) == 0 && len(errs) > 0 {
		os.Exit(1)
	}
}

// emitResult writes each pass's batch as JSON on stdout and logs the
// per-symbol failures.
func emitResult(a *app.App) func(*app.ScanResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return func(result *app.ScanResult) {
		for _, err := range result.Errors {
			a.Logger.Warn().Err(err).Msg("Symbol scan failed")
		}
		if err := enc.Encode(result.Batch); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to encode alert batch")
		}
	}
}
