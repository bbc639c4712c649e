package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
)

const (
	defaultPollInterval  = 2 * time.Second
	maxSleep             = 15 * time.Minute
	continueTickLimit    = 2000
	continueHistoryLimit = 15000
)

// Workflow drives one job_run row to a terminal status. The workflow id is
// the job id; attempt accounting lives in the row, not in Temporal retries.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch out.Status {
		case jobstatus.StatusSucceeded, jobstatus.StatusCanceled:
			return nil
		case jobstatus.StatusFailed, jobstatus.StatusDead:
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("job %s (stage=%s)", out.Status, out.Stage), "job_"+out.Status, nil)
		}

		if d := nextWait(workflow.Now(ctx), out.NextRunAt); d > 0 {
			if err := workflow.Sleep(ctx, d); err != nil {
				return err
			}
		}
		if shouldContinueAsNew(ctx, tick) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func nextWait(now time.Time, nextRunAt *time.Time) time.Duration {
	if nextRunAt == nil || !nextRunAt.After(now) {
		return defaultPollInterval
	}
	d := nextRunAt.Sub(now)
	if d > maxSleep {
		return maxSleep
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
