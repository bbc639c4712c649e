package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/worker"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"

	"go.temporal.io/sdk/activity"
)

type Activities struct {
	Log  *logger.Logger
	Exec *worker.Executor
}

// Tick runs the job once if it is due. Retries scheduled by the handler
// come back as a queued status with NextRunAt set.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Exec == nil || a.Exec.DB == nil || a.Exec.Repo == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}

	job, err := a.load(ctx, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job not found")
	}
	if jobstatus.IsTerminal(job.Status) || notDue(job, time.Now().UTC()) {
		return fill(res, job), nil
	}

	now := time.Now().UTC()
	ok, err := a.Exec.Repo.UpdateFieldsUnlessStatus(a.dbc(ctx), id,
		[]string{jobstatus.StatusSucceeded, jobstatus.StatusFailed, jobstatus.StatusDead, jobstatus.StatusCanceled},
		map[string]interface{}{
			"status":       jobstatus.StatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if err != nil {
		return res, err
	}
	if !ok {
		// settled between load and claim
		if job, err = a.load(ctx, id); err != nil || job == nil {
			return res, err
		}
		return fill(res, job), nil
	}
	job.Status = jobstatus.StatusRunning
	job.Attempts++
	job.LockedAt = &now
	job.HeartbeatAt = &now

	stop := a.startHeartbeat(ctx, id)
	a.Exec.Execute(ctx, job)
	stop()

	updated, err := a.load(ctx, id)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job not found after tick")
	}
	return fill(res, updated), nil
}

func notDue(job *types.JobRun, now time.Time) bool {
	return job.Status == jobstatus.StatusQueued && job.NextRunAt != nil && job.NextRunAt.After(now)
}

func fill(res TickResult, job *types.JobRun) TickResult {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Message = job.Message
	res.NextRunAt = job.NextRunAt
	return res
}

func (a *Activities) dbc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx, Tx: a.Exec.DB}
}

func (a *Activities) load(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	return a.Exec.Repo.GetByID(a.dbc(ctx), id)
}

func (a *Activities) startHeartbeat(ctx context.Context, id uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				if err := a.Exec.Repo.Heartbeat(a.dbc(ctx), id); err != nil && a.Log != nil {
					a.Log.Warn("job heartbeat failed", "job_id", id, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
