package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/internal/usecase"
	"VolScreen/pkg/cache"
	"VolScreen/pkg/config"
	xhttp "VolScreen/pkg/http"
	applogger "VolScreen/pkg/logger"
)

// App encapsulates the application lifecycle: run a fetch pass over the
// configured universe, export the results, repeat on the refresh interval,
// and serve diagnostics while doing so.
type App struct {
	cfg          *config.Config
	log          *applogger.Logger
	orchestrator *usecase.Orchestrator
	exporter     drepo.Exporter
	cache        *cache.PersistentCache
	summary      *usecase.SummaryHolder

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	orchestrator *usecase.Orchestrator,
	exporter drepo.Exporter,
	c *cache.PersistentCache,
	summary *usecase.SummaryHolder,
) *App {
	return &App{
		cfg:          cfg,
		log:          log,
		orchestrator: orchestrator,
		exporter:     exporter,
		cache:        c,
		summary:      summary,
	}
}

// SetHTTPHandler allows DI to inject the diagnostics handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run executes fetch passes until interrupted. With a zero refresh interval
// it runs a single pass and returns (unless the diagnostics server is
// enabled, in which case it keeps serving until a signal arrives).
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Server.Enabled {
		a.httpServer = xhttp.NewServer(a.httpHandler,
			xhttp.WithHost(a.cfg.Server.Host),
			xhttp.WithPort(a.cfg.Server.Port),
			xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		)
		if err := a.httpServer.Start(); err != nil {
			return err
		}
		a.log.Info("diagnostics server started",
			applogger.String("host", a.cfg.Server.Host), applogger.Int("port", a.cfg.Server.Port))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	a.runOnce(ctx)

	interval := a.cfg.Orchestrator.RefreshInterval
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				a.runOnce(ctx)
			case <-sigCh:
				a.log.Info("shutdown signal received")
				break loop
			}
		}
	} else if a.cfg.Server.Enabled {
		<-sigCh
		a.log.Info("shutdown signal received")
	}

	cancel()
	return a.shutdown(context.Background())
}

// runOnce executes one fetch pass and feeds the outcome to the exporter and
// the diagnostics summary.
func (a *App) runOnce(ctx context.Context) {
	start := time.Now()
	a.log.Info("fetch pass starting",
		applogger.Int("symbols", len(a.cfg.Symbols)),
		applogger.Int("concurrency", a.cfg.Orchestrator.Concurrency))

	records, report, err := a.orchestrator.FetchAll(ctx, a.cfg.Symbols)
	summary := usecase.Summarize(start, records, report, err)
	a.summary.Set(summary)

	if err != nil {
		a.log.Error("fetch pass failed",
			applogger.Error(err),
			applogger.Int("failed", summary.Failed),
			applogger.Int("total", summary.Total))
		return
	}

	a.log.Info("fetch pass complete",
		applogger.Int("fetched", summary.Fetched),
		applogger.Int("failed", summary.Failed),
		applogger.Int("fallback", summary.Fallback),
		applogger.Int("stale", summary.Stale),
		applogger.Int64("duration_ms", summary.DurationMS))

	if len(records) == 0 {
		return
	}
	// Deterministic export order, config order.
	out := make([]*models.MarketRecord, 0, len(records))
	for _, s := range a.cfg.Symbols {
		if rec, ok := records[s]; ok {
			out = append(out, &rec)
			delete(records, s)
		}
	}
	if err := a.exporter.Export(ctx, out); err != nil {
		a.log.Error("export failed", applogger.Error(err))
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.exporter.Close(); err != nil {
		a.log.Warn("exporter close error", applogger.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn("cache close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
