package worker

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/services"
)

// Executor runs one claimed job through its registered handler. Both the
// polling worker and the Temporal activity drive jobs through it.
type Executor struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Repo     repos.JobRunRepo
	Events   repos.JobRunEventRepo
	Registry *runtime.Registry
	Notify   services.JobNotifier
}

// Execute expects job to already be in the running state.
func (x *Executor) Execute(ctx context.Context, job *types.JobRun) {
	if x == nil || job == nil {
		return
	}
	jc := runtime.NewContext(ctx, x.DB, job, x.Repo, x.Events, x.Notify)

	h, ok := x.Registry.Get(job.JobType)
	if !ok {
		x.Log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			x.Log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
			jc.Fail("panic", errFromRecover(r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// Handlers normally settle the job themselves.
		jc.Fail("run", runErr)
		return
	}
	if jc.Job.Status == jobstatus.StatusRunning {
		x.Log.Warn("Job handler returned without terminal status; marking succeeded", "job_id", job.ID, "job_type", job.JobType)
		jc.Succeed("done", nil)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
