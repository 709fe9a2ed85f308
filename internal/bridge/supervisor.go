package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/pkg/logging"
)

// Supervisor is the bridge's single long-lived loop: two tickers, one per
// chain's poll interval, each driving that chain's ingest-then-process pair
// as a context-bounded watchdog task that ends with a heartbeat beat, plus
// a maintenance ticker for the backing reconciler and balance reconciler.
// Grounded on
// teacher's internal/node/retry_worker.go (two-ticker single-select loop,
// Start/Stop lifecycle) and internal/swap/monitor.go
// (context.WithCancel/ctx.Done() shutdown, per-check context.WithTimeout).
// A watchdog timeout abandons that tick's remaining work, not the process:
// the next tick tries again from whatever the store durably recorded.
type Supervisor struct {
	cfgS config.ChainSConfig
	cfgN config.ChainNConfig
	hb   config.HeartbeatConfig
	bck  config.BackingConfig

	ingestS    *IngestS
	processorS *ProcessorS
	ingestN    *IngestN
	processorN *ProcessorN
	heartbeat  *Heartbeat
	reconciler *Reconciler
	balanceRec *BalanceReconciler

	log *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// SupervisorDeps bundles every worker the loop drives. balanceRec may be
// nil: the cross-check is diagnostic and the loop runs fine without it.
type SupervisorDeps struct {
	IngestS    *IngestS
	ProcessorS *ProcessorS
	IngestN    *IngestN
	ProcessorN *ProcessorN
	Heartbeat  *Heartbeat
	Reconciler *Reconciler
	BalanceRec *BalanceReconciler
}

// NewSupervisor builds a Supervisor over deps, using cfgS/cfgN's poll
// intervals and bck's reconcile interval to drive its tickers.
func NewSupervisor(deps SupervisorDeps, cfgS config.ChainSConfig, cfgN config.ChainNConfig, hb config.HeartbeatConfig, bck config.BackingConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfgS:       cfgS,
		cfgN:       cfgN,
		hb:         hb,
		bck:        bck,
		ingestS:    deps.IngestS,
		processorS: deps.ProcessorS,
		ingestN:    deps.IngestN,
		processorN: deps.ProcessorN,
		heartbeat:  deps.Heartbeat,
		reconciler: deps.Reconciler,
		balanceRec: deps.BalanceRec,
		log:        logging.GetDefault().Component("supervisor"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the supervisory loop in the background.
func (s *Supervisor) Start(ctx context.Context) {
	go s.run(ctx)
	s.log.Info("supervisor started",
		"chain_s_interval_sec", s.cfgS.PollIntervalSec,
		"chain_n_interval_sec", s.cfgN.PollIntervalSec,
		"maintenance_interval_sec", s.bck.ReconcileIntervalSec)
}

// Stop signals the loop to exit. It does not wait for an in-flight tick to
// finish; callers that need that should select on a context they control
// and cancel it, then give the loop a moment to observe cancellation.
func (s *Supervisor) Stop() {
	s.cancel()
	s.log.Info("supervisor stopped")
}

func pollInterval(sec int, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func (s *Supervisor) run(parent context.Context) {
	chainSTicker := time.NewTicker(pollInterval(s.cfgS.PollIntervalSec, 10*time.Second))
	chainNTicker := time.NewTicker(pollInterval(s.cfgN.PollIntervalSec, 10*time.Second))
	maintTicker := time.NewTicker(pollInterval(s.bck.ReconcileIntervalSec, 60*time.Second))
	defer chainSTicker.Stop()
	defer chainNTicker.Stop()
	defer maintTicker.Stop()

	waterlines, err := s.heartbeat.LoadStartupWaterlines(parent)
	if err != nil {
		s.log.Warn("load startup waterlines failed, starting from zero", "err", err)
	}
	wlineS, wlineN := waterlines.SolanaSafe, waterlines.NexusSafe

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-parent.Done():
			return
		case <-chainSTicker.C:
			s.runWatchdog("chain_s_cycle", pollInterval(s.cfgS.PollTimeBudget, 15*time.Second), func(ctx context.Context) {
				if err := s.ingestS.Run(ctx, wlineS); err != nil {
					s.log.Warn("ingest_s failed", "err", err)
				}
				if err := s.processorS.Run(ctx); err != nil {
					s.log.Warn("processor_s failed", "err", err)
				}
				if err := s.heartbeat.Beat(ctx); err != nil {
					s.log.Warn("heartbeat beat failed", "err", err)
				}
			})
		case <-chainNTicker.C:
			s.runWatchdog("chain_n_cycle", pollInterval(s.cfgN.PollTimeBudget, 15*time.Second), func(ctx context.Context) {
				if err := s.ingestN.Run(ctx, wlineN); err != nil {
					s.log.Warn("ingest_n failed", "err", err)
				}
				if err := s.processorN.Run(ctx); err != nil {
					s.log.Warn("processor_n failed", "err", err)
				}
				if err := s.heartbeat.Beat(ctx); err != nil {
					s.log.Warn("heartbeat beat failed", "err", err)
				}
			})
		case <-maintTicker.C:
			s.runWatchdog("maintenance_cycle", 30*time.Second, func(ctx context.Context) {
				if err := s.reconciler.Run(ctx); err != nil {
					s.log.Warn("reconciler failed", "err", err)
				}
				if s.balanceRec != nil {
					if err := s.balanceRec.Run(ctx); err != nil {
						s.log.Warn("balance reconciler failed", "err", err)
					}
				}
			})
		}
	}
}

// runWatchdog bounds one tick's work to budget. It draws a fresh
// correlation id per tick, which the budget-exceeded warning carries; the
// workers' own log lines do not include it, since no id is threaded
// through their Run signatures.
func (s *Supervisor) runWatchdog(name string, budget time.Duration, work func(ctx context.Context)) {
	cycleID := uuid.NewString()
	ctx, cancel := context.WithTimeout(s.ctx, budget)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		work(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("cycle exceeded budget, abandoning remaining work for this tick",
			"cycle", name, "cycle_id", cycleID, "budget", budget)
		<-done
	}
}
