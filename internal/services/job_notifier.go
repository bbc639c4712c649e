package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/vidstream-backend/internal/domain"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/redis"
)

const (
	EventJobCreated  = "JobCreated"
	EventJobProgress = "JobProgress"
	EventJobFailed   = "JobFailed"
	EventJobDone     = "JobDone"
)

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

// jobNotifier publishes on the Redis bus when one is configured and logs
// otherwise.
type jobNotifier struct {
	log *logger.Logger
	bus redis.EventBus
}

func NewJobNotifier(log *logger.Logger, bus redis.EventBus) JobNotifier {
	return &jobNotifier{log: log.With("service", "JobNotifier"), bus: bus}
}

func (n *jobNotifier) emit(userID uuid.UUID, event string, job *types.JobRun, data map[string]any) {
	if n == nil || userID == uuid.Nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if job != nil {
		data["job_id"] = job.ID
		data["job_type"] = job.JobType
		data["status"] = job.Status
	}
	if n.bus == nil {
		n.log.Debug("Job event", "event", event, "owner_user_id", userID, "data", data)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, redis.Message{Channel: userID.String(), Event: event, Data: data}); err != nil {
		n.log.Warn("Job event publish failed", "event", event, "error", err)
	}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.JobRun) {
	n.emit(userID, EventJobCreated, job, nil)
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	n.emit(userID, EventJobProgress, job, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	n.emit(userID, EventJobFailed, job, map[string]any{
		"stage": stage,
		"error": errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	n.emit(userID, EventJobDone, job, nil)
}
