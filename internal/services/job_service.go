package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/apierr"
	"github.com/yungbote/vidstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// JobWorkflowName is the Temporal workflow type that drives one job_run.
const JobWorkflowName = "job_run"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotRestartable = errors.New("job not restartable")
)

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// EnqueueRetryable enqueues a job the runtime may retry with backoff up
	// to maxAttempts times before marking it dead.
	EnqueueRetryable(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, maxAttempts int) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByIDForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListEventsForRequestUser(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobRunEvent, error)
	RestartForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	events repos.JobRunEventRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService wires the job queue. A nil Temporal client leaves queued
// jobs to the polling worker.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	events repos.JobRunEventRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		events:            events,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	return s.EnqueueRetryable(dbc, ownerUserID, jobType, entityType, entityID, payload, 1)
}

func (s *jobService) EnqueueRetryable(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, maxAttempts int) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      jobstatus.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		MaxAttempts: maxAttempts,
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}
	if _, err := s.repo.Create(repoCtx, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.events != nil {
		_ = s.events.Create(repoCtx, []*types.JobRunEvent{{
			JobID:       job.ID,
			OwnerUserID: job.OwnerUserID,
			JobType:     job.JobType,
			Kind:        string(jobstatus.JobEventCreated),
			Status:      job.Status,
			Stage:       job.Stage,
			Message:     job.Message,
			CreatedAt:   now,
		}})
	}
	if s.notify != nil {
		s.notify.JobCreated(ownerUserID, job)
	}

	// Inside a real transaction the caller dispatches after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	if s.temporal == nil {
		return nil
	}
	ctx := ctxutil.Default(dbc.Ctx)
	err := s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	// The row stays queued; a polling worker can still pick it up.
	s.log.Warn("Temporal dispatch failed", "job_id", jobID, "error", err)
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "vidstream"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, JobWorkflowName)
	return err
}

func (s *jobService) GetByIDForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("unauthenticated", fmt.Errorf("not authenticated"))
	}
	if jobID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_job_id", fmt.Errorf("missing job id"))
	}
	job, err := s.repo.GetByID(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != rd.UserID {
		return nil, apierr.NotFound("job_not_found", ErrJobNotFound)
	}
	return job, nil
}

func (s *jobService) ListEventsForRequestUser(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobRunEvent, error) {
	job, err := s.GetByIDForRequestUser(dbc, jobID)
	if err != nil {
		return nil, err
	}
	return s.events.ListByJob(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}, job.ID)
}

// RestartForRequestUser requeues a failed or dead run. The step log in
// job_run.result is kept, so completed steps are skipped on the next run.
func (s *jobService) RestartForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByIDForRequestUser(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobstatus.StatusFailed && job.Status != jobstatus.StatusDead {
		return nil, apierr.Conflict("job_not_restartable", fmt.Errorf("%w: status=%s", ErrJobNotRestartable, job.Status))
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        jobstatus.StatusQueued,
		"stage":         "queued",
		"message":       "Restarting",
		"error":         "",
		"attempts":      0,
		"last_error_at": nil,
		"next_run_at":   nil,
		"locked_at":     nil,
		"heartbeat_at":  now,
		"updated_at":    now,
	}
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Or(s.db)}, jobID,
		[]string{jobstatus.StatusQueued, jobstatus.StatusRunning, jobstatus.StatusSucceeded, jobstatus.StatusCanceled}, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.Conflict("job_not_restartable", ErrJobNotRestartable)
	}

	job.Status = jobstatus.StatusQueued
	job.Stage = "queued"
	job.Message = "Restarting"
	job.Error = ""
	job.Attempts = 0
	job.LastErrorAt = nil
	job.NextRunAt = nil
	job.LockedAt = nil
	job.HeartbeatAt = &now
	job.UpdatedAt = now

	if s.temporal != nil {
		if err := s.startTemporalJobWorkflow(ctxutil.Default(dbc.Ctx), jobID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE); err != nil {
			return nil, fmt.Errorf("restart temporal workflow: %w", err)
		}
	}
	return job, nil
}
