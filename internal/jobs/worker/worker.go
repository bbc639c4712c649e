package worker

import (
	"context"
	"time"

	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// Worker polls job_run and executes due jobs. It is the fallback when no
// Temporal cluster is configured.
type Worker struct {
	log          *logger.Logger
	exec         *Executor
	concurrency  int
	pollInterval time.Duration
	staleRunning time.Duration
}

func NewWorker(baseLog *logger.Logger, exec *Executor) *Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	poll := envutil.Millis("WORKER_POLL_INTERVAL_MS", 1000)
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{
		log:          baseLog.With("component", "JobWorker"),
		exec:         exec,
		concurrency:  concurrency,
		pollInterval: poll,
		staleRunning: envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 600),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				}
				if !ran || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one due job.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.exec.Repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.staleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.exec.Execute(ctx, job)
	return true, nil
}
