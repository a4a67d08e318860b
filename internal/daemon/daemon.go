// Package daemon runs warden as a long-lived process: the
// observe-decide-act loop, a metrics and health listener, and a
// governance config watcher, supervised as one actor group.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	govconfig "github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/failsafe"
	"github.com/wardenhq/warden/governor"
	iconfig "github.com/wardenhq/warden/internal/config"
	itelemetry "github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/lifecycle"
	"github.com/wardenhq/warden/orchestrator"
	"github.com/wardenhq/warden/policy"
	"github.com/wardenhq/warden/storage"
	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/wal"
)

// Daemon wires the full pipeline and supervises its actors
type Daemon struct {
	cfg        *iconfig.Config
	governance *govconfig.Config
	core       *orchestrator.Core
	loop       *orchestrator.Loop
	dispatcher *dispatch.Dispatcher
	store      *storage.RecordStore
	journal    *wal.WAL
	halt       *failsafe.HaltState
	provider   *itelemetry.Provider
	metrics    *DaemonMetrics
	logger     *telemetry.Logger
	startTime  time.Time
}

// New assembles a daemon from runtime config. The signal source decides
// what the loop observes; pass nil to run dispatch-only (submissions
// arrive via the CLI against the same data dir).
func New(ctx context.Context, cfg *iconfig.Config, source orchestrator.SignalSource) (*Daemon, error) {
	governance, err := loadGovernance(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := itelemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := storage.NewRecordStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	journal, err := wal.Open(cfg.Data.Dir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	coreMetrics, err := telemetry.NewMetrics()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	daemonMetrics, err := NewDaemonMetrics()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init daemon metrics: %w", err)
	}

	halt := failsafe.NewHaltState(store)
	monitor := failsafe.NewMonitor(halt, governance.Monitor.CascadingThreshold, governance.Monitor.Window).
		WithMetrics(coreMetrics)
	tracker := lifecycle.NewTracker()

	gov := governor.New(governance.Governor, halt, tracker).WithMetrics(coreMetrics)
	policyDir := governance.Governor.PolicyDir
	if policyDir == "" {
		policyDir = cfg.Data.PolicyDir
	}
	if policyDir != "" {
		engine := policy.NewEngine()
		if err := engine.LoadDir(ctx, policyDir); err != nil {
			store.Close()
			return nil, fmt.Errorf("load policies: %w", err)
		}
		gov = gov.WithVetoer(engine)
	}
	if governance.Governor.ClassifierPolicy != "" {
		regoCode, err := os.ReadFile(governance.Governor.ClassifierPolicy) // #nosec G304 -- operator-chosen path
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("read classifier policy: %w", err)
		}
		classifier, err := policy.NewRegoClassifier(ctx, string(regoCode))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load classifier policy: %w", err)
		}
		gov = gov.WithClassifier(classifier)
	}

	dispatcher := dispatch.New(governance.EnabledPaths(), halt).WithMetrics(coreMetrics)
	dispatcher.Register(dispatch.NewManualExecutor(cfg.Data.TicketDir))

	core := orchestrator.New(governance, gov, dispatcher, tracker, halt, monitor, store, journal).
		WithMetrics(coreMetrics)
	if err := core.Restore(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("restore state: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		governance: governance,
		core:       core,
		dispatcher: dispatcher,
		store:      store,
		journal:    journal,
		halt:       halt,
		provider:   provider,
		metrics:    daemonMetrics,
		logger:     telemetry.NewLogger("daemon"),
		startTime:  time.Now(),
	}
	if source != nil {
		d.loop = orchestrator.NewLoop(core, source, cfg.Loop.Interval).
			WithCycleHook(d.recordCycle)
	}
	return d, nil
}

func loadGovernance(cfg *iconfig.Config) (*govconfig.Config, error) {
	if cfg.Data.GovernanceFile == "" {
		return govconfig.Default(), nil
	}
	return govconfig.Load(cfg.Data.GovernanceFile)
}

// Core exposes the pipeline for CLI commands sharing a daemon build
func (d *Daemon) Core() *orchestrator.Core {
	return d.core
}

// RegisterExecutor adds an execution path backend before Run
func (d *Daemon) RegisterExecutor(e dispatch.Executor) {
	d.dispatcher.Register(e)
}

// Run blocks until a signal arrives or an actor fails. In one-shot mode
// it runs a single cycle and returns.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Loop.OneShot {
		if d.loop == nil {
			return fmt.Errorf("one-shot mode needs a signal source")
		}
		result := d.loop.RunOnce(ctx)
		d.logger.WithContext(ctx).Info().
			Int("polled", result.Polled).
			Int("allowed", result.Allowed).
			Msg("One-shot cycle finished")
		return nil
	}

	var group run.Group

	// Signal handling
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	// Observe-decide-act loop
	if d.loop != nil {
		loopCtx, cancel := context.WithCancel(ctx)
		group.Add(
			func() error { return d.loop.Run(loopCtx) },
			func(error) { cancel() },
		)
	}

	// Metrics and health listener
	server := d.httpServer()
	group.Add(
		func() error { return server.ListenAndServe() },
		func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		},
	)

	// Governance config watcher
	if d.cfg.Data.GovernanceFile != "" {
		watcher, err := d.newGovernanceWatcher()
		if err != nil {
			return err
		}
		watchCtx, cancel := context.WithCancel(ctx)
		group.Add(
			func() error { return watcher.watch(watchCtx) },
			func(error) {
				cancel()
				_ = watcher.close()
			},
		)
	}

	d.logger.WithContext(ctx).Info().
		Str("addr", d.cfg.Server.Addr).
		Bool("loop", d.loop != nil).
		Msg("Daemon starting")

	err := group.Run()
	if _, isSignal := err.(run.SignalError); isSignal {
		d.logger.WithContext(ctx).Info().Msg("Shutdown signal received")
		return nil
	}
	return err
}

// Close releases storage, journal and telemetry
func (d *Daemon) Close(ctx context.Context) error {
	var firstErr error
	if err := d.journal.Close(); err != nil {
		firstErr = err
	}
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.provider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// HealthStatus reports liveness for the /healthz endpoint
type HealthStatus struct {
	Status string `json:"status"`
	Halted bool   `json:"halted"`
	Uptime int64  `json:"uptime_seconds"`
}

// Health returns daemon health. A halted daemon is still healthy, it
// is doing exactly what it was told to do.
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Halted: d.halt.Active(),
		Uptime: int64(time.Since(d.startTime).Seconds()),
	}
}

func (d *Daemon) recordCycle(ctx context.Context, result orchestrator.CycleResult) {
	status := "ok"
	if result.Failed > 0 {
		status = "degraded"
	}
	d.metrics.RecordCycle(ctx, status, result.Duration.Seconds())
	d.metrics.RecordHaltState(ctx, d.halt.Active())
}

func (d *Daemon) httpServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.provider.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/status", d.handleStatus)

	return &http.Server{
		Addr:              d.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
