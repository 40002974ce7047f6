package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsemon/internal/alerts"
	"pulsemon/internal/checks"
	"pulsemon/internal/collector"
	"pulsemon/internal/config"
	"pulsemon/internal/db"
	"pulsemon/internal/docker"
	"pulsemon/internal/heartbeat"
	"pulsemon/internal/models"
	"pulsemon/internal/state"
)

// workerItem is the identity key for the remote controller in the debounce
// trackers; every service uses its own declared name.
const workerItem = "worker"

// Orchestrator drives the clock-aligned monitoring loop: sequential host
// sampling, concurrent check fan-out with a join barrier, heartbeat, state
// pass, and the atomic cycle write.
type Orchestrator struct {
	cfg        config.Config
	checker    *checks.Checker
	docker     *docker.Client
	host       *collector.HostCollector
	hb         *heartbeat.Client
	repo       *db.Repository
	dispatcher *alerts.Dispatcher
	services   *state.Tracker[models.Status]
	worker     *state.Tracker[int]
	log        *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(
	cfg config.Config,
	checker *checks.Checker,
	dc *docker.Client,
	hb *heartbeat.Client,
	repo *db.Repository,
	dispatcher *alerts.Dispatcher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		checker:    checker,
		docker:     dc,
		host:       collector.NewHostCollector(),
		hb:         hb,
		repo:       repo,
		dispatcher: dispatcher,
		services:   state.NewTracker[models.Status](cfg.StatusThreshold),
		worker:     state.NewTracker[int](cfg.StatusThreshold),
		log:        logger,
		now:        time.Now,
	}
}

// Run loops until ctx is cancelled. Ticks land on wall-clock boundaries of
// the configured interval; a failing tick never stops the loop.
func (o *Orchestrator) Run(ctx context.Context) {
	o.seedWorkerState(ctx)
	timer := time.NewTimer(alignDelay(o.now(), o.cfg.LoopInterval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		o.safeTick(ctx)
		timer.Reset(alignDelay(o.now(), o.cfg.LoopInterval))
	}
}

// alignDelay computes interval - (now mod interval) so ticks land on round
// boundaries.
func alignDelay(now time.Time, interval time.Duration) time.Duration {
	rem := time.Duration(now.UnixNano()) % interval
	return interval - rem
}

// seedWorkerState restores the controller's stable status from the most
// recent persisted cycle so a restart does not spuriously re-alert.
func (o *Orchestrator) seedWorkerState(ctx context.Context) {
	cycle, _, err := o.repo.LatestCycle(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			o.log.Warn("could not seed worker state", "err", err)
		}
		return
	}
	code := heartbeat.NoResponse
	if cycle.WorkerStatus != nil {
		code = *cycle.WorkerStatus
	}
	o.worker.Seed(workerItem, code, o.now())
	o.log.Info("seeded worker state from last cycle", "worker_status", code, "cycle_ts", cycle.TS)
}

func (o *Orchestrator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("cycle panicked", "panic", fmt.Sprint(r))
		}
	}()
	o.tick(ctx)
}

func (o *Orchestrator) tick(ctx context.Context) {
	start := o.now()

	// Host metrics are a synchronous non-blocking read; everything
	// I/O-bound goes through the fan-out below.
	sample, err := o.host.Sample()
	if err != nil {
		o.log.Warn("host sample failed", "err", err)
	}

	results := make([]models.ServiceCheckResult, len(o.cfg.Services))
	var (
		wg             sync.WaitGroup
		internetOK     bool
		pingMS         *int64
		containerCount int
	)
	for i, svc := range o.cfg.Services {
		wg.Add(1)
		go func(i int, svc config.ServiceDecl) {
			defer wg.Done()
			r := o.checker.Check(ctx, svc.Target)
			results[i] = models.ServiceCheckResult{
				ServiceName: svc.Name,
				Target:      svc.Target.Spec(),
				Status:      r.Status,
				LatencyMS:   r.LatencyMS,
				Code:        r.Code,
				Error:       r.Error,
			}
		}(i, svc)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		internetOK, pingMS = o.checker.CheckInternet(ctx, o.cfg.PingURL)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CheckTimeout)
		defer cancel()
		containerCount = o.docker.RunningCount(cctx)
	}()
	// Join barrier: no result is consumed before every task has completed
	// or hit its own timeout.
	wg.Wait()

	statuses := make(map[string]models.Status, len(results))
	for _, r := range results {
		statuses[r.ServiceName] = r.Status
	}

	workerCode := heartbeat.NoResponse
	if internetOK {
		workerCode = o.hb.Send(ctx, statuses)
	}

	now := o.now()
	o.processWorker(workerCode, internetOK, now)
	for _, r := range results {
		o.processService(r, now)
	}

	var workerStatus *int
	if workerCode != heartbeat.NoResponse {
		workerStatus = &workerCode
	}
	cycle := models.MonitoringCycle{
		ID:              uuid.NewString(),
		TS:              start.UTC(),
		CPUPct:          sample.CPUPct,
		RAMPct:          sample.RAMPct,
		RAMUsedMB:       sample.RAMUsedMB,
		DiskPct:         sample.DiskPct,
		ContainerCount:  containerCount,
		InternetOK:      internetOK,
		PingMS:          pingMS,
		WorkerStatus:    workerStatus,
		CycleDurationMS: time.Since(start).Milliseconds(),
		UptimeSec:       sample.UptimeSec,
	}
	for i := range results {
		results[i].CycleID = cycle.ID
	}
	if err := o.repo.InsertCycle(ctx, cycle, results); err != nil {
		// The one failure mode surfaced loudly: it breaks the historical
		// record. The loop still survives to the next tick.
		o.log.Error("persist cycle failed", "err", err, "cycle_id", cycle.ID)
	}

	o.logCycle(cycle, results)
}

func (o *Orchestrator) processWorker(code int, internetOK bool, now time.Time) {
	action, _ := o.worker.Observe(workerItem, code, func(c int) bool {
		return c == heartbeat.StatusOK
	}, now)
	if action == state.ActionNone {
		return
	}
	o.dispatcher.Enqueue(alerts.WorkerEvent(action, code, internetOK, now))
}

func (o *Orchestrator) processService(r models.ServiceCheckResult, now time.Time) {
	action, _ := o.services.Observe(r.ServiceName, r.Status, models.Status.Healthy, now)
	if action == state.ActionNone {
		return
	}
	result := models.CheckResult{Status: r.Status, LatencyMS: r.LatencyMS, Code: r.Code, Error: r.Error}
	o.dispatcher.Enqueue(alerts.ServiceEvent(r.ServiceName, action, result, now))
}

func (o *Orchestrator) logCycle(cycle models.MonitoringCycle, results []models.ServiceCheckResult) {
	healthy := 0
	for _, r := range results {
		if r.Status.Healthy() {
			healthy++
		}
	}
	attrs := []any{
		"cycle_id", cycle.ID,
		"duration_ms", cycle.CycleDurationMS,
		"services_healthy", healthy,
		"services_total", len(results),
		"internet_ok", cycle.InternetOK,
		"containers", cycle.ContainerCount,
	}
	if cycle.WorkerStatus != nil {
		attrs = append(attrs, "worker_status", *cycle.WorkerStatus)
	}
	if st, ok := o.worker.State(workerItem); ok {
		attrs = append(attrs, "worker_stable_cycles", st.Counter)
	}
	o.log.Info("cycle complete", attrs...)
}
