// Package queue implements the Job Queue's worker-side dispatch loop (spec
// §4.1, C1): a fixed pool of goroutines polling JobStore.Dispatch, a
// heartbeat ticker per in-flight job, and a background reaper. Structured
// after the teacher's worker.SendWorkerPool (internal/worker/send_worker.go):
// a struct holding ctx/cancel/wg/running/mu, Start/Stop lifecycle methods,
// and an injected per-job-type handler map instead of a single ESPSender.
package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/metrics"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

// Handler processes one job's payload. Returning an error classified via
// model.AsKindError determines whether the job queue retries it.
type Handler func(ctx context.Context, job *model.Job) error

// Pool runs numWorkers goroutines dispatching jobs from JobStore and a
// single reaper goroutine reclaiming stale ones.
type Pool struct {
	jobs       *store.JobStore
	handlers   map[model.JobType]Handler
	numWorkers int

	pollInterval     time.Duration
	heartbeatEvery   time.Duration
	staleAfter       time.Duration
	reaperInterval   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// Config configures pool sizing and timing, sourced from Config.Worker.
type Config struct {
	NumWorkers       int
	PollInterval     time.Duration
	HeartbeatEvery   time.Duration
	StaleAfter       time.Duration
	ReaperInterval   time.Duration
}

// New builds a Pool. Register handlers with Register before Start.
func New(jobs *store.JobStore, cfg Config) *Pool {
	return &Pool{
		jobs:           jobs,
		handlers:       make(map[model.JobType]Handler),
		numWorkers:     cfg.NumWorkers,
		pollInterval:   cfg.PollInterval,
		heartbeatEvery: cfg.HeartbeatEvery,
		staleAfter:     cfg.StaleAfter,
		reaperInterval: cfg.ReaperInterval,
	}
}

// Register binds a Handler to a job type. Must be called before Start.
func (p *Pool) Register(t model.JobType, h Handler) {
	p.handlers[t] = h
}

// Start launches the worker goroutines and the reaper.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.wg.Add(1)
	go p.reaperLoop()
}

// Stop signals all goroutines to exit and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) workerLoop(workerNum int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	workerID := workerIDFor(workerNum)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			job, err := p.jobs.Dispatch(p.ctx, workerID)
			if err != nil {
				logging.Error("queue: dispatch failed", "worker", workerID, "err", err.Error())
				continue
			}
			if job == nil {
				continue
			}
			p.process(workerID, job)
		}
	}
}

func (p *Pool) process(workerID string, job *model.Job) {
	metrics.JobsDispatched.WithLabelValues(string(job.Type)).Inc()

	handler, ok := p.handlers[job.Type]
	if !ok {
		logging.Error("queue: no handler registered", "job_type", string(job.Type), "job_id", job.ID)
		_ = p.jobs.Retry(p.ctx, job.ID, job.Attempts, job.MaxAttempts, false, "no handler registered")
		metrics.JobsFailed.WithLabelValues(string(job.Type)).Inc()
		return
	}

	hbCtx, hbCancel := context.WithCancel(p.ctx)
	defer hbCancel()
	go p.heartbeatLoop(hbCtx, job.ID)

	err := handler(p.ctx, job)
	if err == nil {
		if cerr := p.jobs.Complete(p.ctx, job.ID); cerr != nil {
			logging.Error("queue: failed to mark job completed", "job_id", job.ID, "err", cerr.Error())
		}
		metrics.JobsCompleted.WithLabelValues(string(job.Type)).Inc()
		return
	}

	retryable := false
	if ke, ok := model.AsKindError(err); ok {
		retryable = ke.Retryable()
	}
	if rerr := p.jobs.Retry(p.ctx, job.ID, job.Attempts, job.MaxAttempts, retryable, err.Error()); rerr != nil {
		logging.Error("queue: failed to record retry", "job_id", job.ID, "err", rerr.Error())
	}
	if retryable && job.Attempts < job.MaxAttempts {
		metrics.JobsRetried.WithLabelValues(string(job.Type)).Inc()
	} else {
		metrics.JobsFailed.WithLabelValues(string(job.Type)).Inc()
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(p.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.jobs.Heartbeat(ctx, jobID); err != nil {
				logging.Warn("queue: heartbeat failed", "job_id", jobID, "err", err.Error())
			}
		}
	}
}

func (p *Pool) reaperLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.jobs.Reap(p.ctx, p.staleAfter)
			if err != nil {
				logging.Error("queue: reap failed", "err", err.Error())
				continue
			}
			if n > 0 {
				logging.Info("queue: reclaimed stale jobs", "count", n)
			}
		}
	}
}

func workerIDFor(n int) string {
	return "worker-" + strconv.Itoa(n)
}
