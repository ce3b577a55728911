// Package scanner fans watchlist symbols across the detectors
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
	"github.com/bobmcallan/tapewatch/internal/models"
)

const (
	DefaultMaxWorkers  = 5
	DefaultDispatchGap = 100 * time.Millisecond
)

// Orchestrator runs one scan pass over a watchlist with bounded
// concurrency. A failing symbol never aborts the pass; its error is
// collected alongside the other symbols' alerts.
type Orchestrator struct {
	volume      interfaces.VolumeDetector
	extended    interfaces.ExtendedHoursDetector
	logger      *common.Logger
	maxWorkers  int
	dispatchGap time.Duration
}

// OrchestratorOption configures the orchestrator
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMaxWorkers bounds scan concurrency
func WithMaxWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithDispatchGap sets the pause between symbol dispatches
func WithDispatchGap(gap time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dispatchGap = gap
	}
}

// NewOrchestrator creates a scan orchestrator over the two detectors
func NewOrchestrator(volume interfaces.VolumeDetector, extended interfaces.ExtendedHoursDetector, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		volume:      volume,
		extended:    extended,
		logger:      common.NewSilentLogger(),
		maxWorkers:  DefaultMaxWorkers,
		dispatchGap: DefaultDispatchGap,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Scan analyzes every symbol and returns the combined alerts sorted by
// severity then magnitude, plus the per-symbol errors. Cancelling the
// context stops new dispatches; in-flight symbols finish.
func (o *Orchestrator) Scan(ctx context.Context, symbols []string) ([]models.Alert, []error) {
	session := o.extended.CurrentSession()
	runExtended := session.IsExtended()

	o.logger.Info().
		Int("symbols", len(symbols)).
		Str("session", string(session)).
		Bool("extended_hours", runExtended).
		Msg("Starting scan pass")

	var mu sync.Mutex
	var alerts []models.Alert
	var errs []error

	var g errgroup.Group
	g.SetLimit(o.maxWorkers)

	// Cancellation stops new dispatches only. Workers already running get a
	// detached context so an in-flight provider call is never cut off
	// mid-request; the per-client HTTP timeouts bound how long they run.
	workCtx := context.WithoutCancel(ctx)

	// Pace dispatches so a burst of workers does not hammer provider quotas
	// all at once.
	pacer := rate.NewLimiter(rate.Every(o.dispatchGap), 1)

	for _, symbol := range symbols {
		if err := pacer.Wait(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("Scan cancelled, stopping dispatch")
			break
		}

		symbol := symbol
		g.Go(func() error {
			symbolAlerts, err := o.scanSymbol(workCtx, symbol, runExtended)

			mu.Lock()
			defer mu.Unlock()
			alerts = append(alerts, symbolAlerts...)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}

	_ = g.Wait() // workers collect their own errors

	models.SortAlerts(alerts)

	o.logger.Info().
		Int("alerts", len(alerts)).
		Int("errors", len(errs)).
		Msg("Scan pass complete")

	return alerts, errs
}

// scanSymbol runs the applicable detectors for one symbol.
func (o *Orchestrator) scanSymbol(ctx context.Context, symbol string, runExtended bool) ([]models.Alert, error) {
	var alerts []models.Alert

	va, err := o.volume.Analyze(ctx, symbol)
	if err != nil {
		return alerts, fmt.Errorf("scan %s: %w", symbol, err)
	}
	if va != nil {
		alerts = append(alerts, va)
	}

	if runExtended {
		ea, err := o.extended.Analyze(ctx, symbol)
		if err != nil {
			return alerts, fmt.Errorf("scan %s: %w", symbol, err)
		}
		if ea != nil {
			alerts = append(alerts, ea)
		}
	}

	return alerts, nil
}

// ScanBatch runs Scan and wraps the result in an AlertBatch, truncated to
// maxAlerts when positive.
func (o *Orchestrator) ScanBatch(ctx context.Context, symbols []string, maxAlerts int) (*models.AlertBatch, []error) {
	alerts, errs := o.Scan(ctx, symbols)
	if maxAlerts > 0 && len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}
	return models.NewAlertBatch(alerts), errs
}
