// Package dispatch runs deferred work outside the request lifecycle. Jobs are
// persisted before the triggering response returns, so a restart between
// scheduling and execution does not drop them. A single poll loop executes
// due jobs; uncaught failures are logged and recorded, never retried.
package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// HandlerFunc is the unit of deferred work. Args carry whatever the
// scheduling call marshaled.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// Execution statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Dispatcher owns the job store and the poll loop. It is constructed
// explicitly and injected where needed; there is no process-wide singleton.
type Dispatcher struct {
	mu       sync.RWMutex
	store    *JobStore
	handlers map[string]HandlerFunc
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(db *sql.DB, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    NewJobStore(db),
		handlers: make(map[string]HandlerFunc),
		interval: time.Second,
		logger:   logger,
	}
}

// Register binds a handler name to its function. Must happen before Start so
// durable jobs from a previous process can resolve.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[name] = fn
	d.mu.Unlock()
}

// Store exposes the underlying job store for maintenance handlers.
func (d *Dispatcher) Store() *JobStore {
	return d.store
}

// ScheduleOnce registers a one-shot job to run after delay. Scheduling the
// same id again before the first run is a silent no-op, not an error.
func (d *Dispatcher) ScheduleOnce(id, handler string, args any, delay time.Duration) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal job args: %w", err)
	}
	return d.store.InsertOnce(id, handler, payload, time.Now().Add(delay), false)
}

// ScheduleCron registers a recurring job on a standard five-field cron spec,
// replacing any previous definition of the same id.
func (d *Dispatcher) ScheduleCron(id, handler, spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return d.store.UpsertCron(id, handler, spec, sched.Next(time.Now()))
}

// Start releases stale claims from a previous process and begins the poll
// loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.store.ReleaseAll(); err != nil {
		return err
	}

	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.RunDue(ctx, time.Now())
			}
		}
	}()

	return nil
}

// Stop halts the poll loop and waits for an in-flight tick to finish.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunDue claims and executes every job due at now. Exposed so tests can
// drive the dispatcher without waiting on the ticker.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time) {
	jobs, err := d.store.ListDue(now)
	if err != nil {
		d.logger.Error("list due jobs", "error", err)
		return
	}

	for _, job := range jobs {
		claimed, err := d.store.Claim(job.ID)
		if err != nil {
			d.logger.Error("claim job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		d.execute(ctx, job, now)
	}
}

func (d *Dispatcher) execute(ctx context.Context, job *Job, now time.Time) {
	d.mu.RLock()
	fn, ok := d.handlers[job.Handler]
	d.mu.RUnlock()

	started := time.Now()
	var execErr error
	status := StatusOK

	if !ok {
		execErr = fmt.Errorf("no handler registered for %q", job.Handler)
		status = StatusError
	} else {
		execErr = d.safeRun(ctx, fn, job.Args)
		if execErr != nil {
			status = StatusError
		}
	}
	finished := time.Now()

	if execErr != nil {
		// Failures are terminal: the triggering request has long since
		// returned, so the only consumers of this are logs and the
		// execution history.
		d.logger.Error("job failed", "job_id", job.ID, "handler", job.Handler, "error", execErr)
	} else {
		d.logger.Info("job completed", "job_id", job.ID, "handler", job.Handler,
			"duration", finished.Sub(started))
	}

	if err := d.store.RecordExecution(job.ID, status, execErr, started, finished); err != nil {
		d.logger.Error("record execution", "job_id", job.ID, "error", err)
	}

	switch job.Kind {
	case KindCron:
		next := now.Add(time.Minute)
		if job.CronSpec != nil {
			if sched, err := cron.ParseStandard(*job.CronSpec); err == nil {
				next = sched.Next(now)
			}
		}
		if err := d.store.Reschedule(job.ID, next); err != nil {
			d.logger.Error("reschedule job", "job_id", job.ID, "error", err)
		}
	default:
		if err := d.store.Complete(job.ID); err != nil {
			d.logger.Error("complete job", "job_id", job.ID, "error", err)
		}
	}
}

// safeRun converts a handler panic into an error so one bad job cannot take
// down the poll loop.
func (d *Dispatcher) safeRun(ctx context.Context, fn HandlerFunc, args json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args)
}
