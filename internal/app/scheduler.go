package app

import (
	"context"
	"time"

	"github.com/bobmcallan/tapewatch/internal/models"
)

// ScanResult is one scan pass's outcome.
type ScanResult struct {
	Batch  *models.AlertBatch
	Errors []error
}

// RunScanLoop repeatedly scans the watchlist on a fixed interval until the
// context is cancelled. Each pass's result is handed to emit.
func (a *App) RunScanLoop(ctx context.Context, interval time.Duration, emit func(*ScanResult)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.Logger.Info().Dur("interval", interval).Msg("Scan loop started")

	// First pass immediately rather than waiting a full interval.
	a.runPass(ctx, emit)

	for {
		select {
		case <-ctx.Done():
			a.Logger.Info().Msg("Scan loop stopped")
			return
		case <-ticker.C:
			a.runPass(ctx, emit)
		}
	}
}

func (a *App) runPass(ctx context.Context, emit func(*ScanResult)) {
	start := time.Now()

	batch, errs := a.Orchestrator.ScanBatch(ctx, a.Config.Watchlist, a.Config.Scanner.MaxAlerts)

	a.Logger.Info().
		Int("alerts", len(batch.Alerts)).
		Int("errors", len(errs)).
		Dur("elapsed", time.Since(start)).
		Msg("Scan pass finished")

	if emit != nil {
		emit(&ScanResult{Batch: batch, Errors: errs})
	}
}
