package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator runs queued batch jobs on a fixed set of workers and
// keeps finished jobs around for status polling until their TTL lapses.
type Orchestrator struct {
	pipeline *Pipeline
	jobs     *JobStore
	queue    chan *Job
	log      *slog.Logger
	workers  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator builds an orchestrator; call Start before Submit.
func NewOrchestrator(p *Pipeline, workers, queueSize int, jobTTL time.Duration, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		pipeline: p,
		jobs:     NewJobStore(jobTTL),
		queue:    make(chan *Job, queueSize),
		log:      log,
		workers:  workers,
	}
}

// Start launches worker goroutines and the job store cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the workers.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a job. A full queue fails the job immediately instead
// of blocking the caller.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed)
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID, or nil if unknown or expired.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns how many jobs are waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "collection", job.Collection, "sources", len(job.locators))
	log.Info("job started")
	job.SetStatus(StatusRunning)

	o.pipeline.run(ctx, job.locators, job.Collection, job.policy, job.RecordResult)

	job.Finish()
	snap := job.Snapshot()
	log.Info("job finished",
		"status", snap.Status,
		"processed", snap.Progress.SourcesProcessed,
		"failed", snap.Progress.SourcesFailed,
		"chunks", snap.Progress.ChunksCreated,
	)
}
