package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/apierr"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// Workflow names accepted by Trigger.
const (
	WorkflowTitle       = "title"
	WorkflowDescription = "description"
	WorkflowThumbnail   = "thumbnail"
)

var workflowJobTypes = map[string]string{
	WorkflowTitle:       jobstatus.JobTypeVideoTitle,
	WorkflowDescription: jobstatus.JobTypeVideoDescription,
	WorkflowThumbnail:   jobstatus.JobTypeVideoThumbnail,
}

type TriggerRequest struct {
	UserID  string `json:"userId"`
	VideoID string `json:"videoId"`
	Prompt  string `json:"prompt,omitempty"`
}

type WorkflowService interface {
	// Trigger starts an enrichment run for the authenticated caller and
	// returns its run id. The run itself validates the video.
	Trigger(dbc dbctx.Context, name string, req TriggerRequest) (*types.JobRun, error)
}

type workflowService struct {
	log  *logger.Logger
	jobs JobService
}

func NewWorkflowService(log *logger.Logger, jobs JobService) WorkflowService {
	return &workflowService{log: log.With("service", "WorkflowService"), jobs: jobs}
}

func (s *workflowService) Trigger(dbc dbctx.Context, name string, req TriggerRequest) (*types.JobRun, error) {
	subject, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	jobType, ok := workflowJobTypes[name]
	if !ok {
		return nil, apierr.NotFound("unknown_workflow", fmt.Errorf("unknown workflow %q", name))
	}

	userID := subject
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, apierr.BadRequest("invalid_user_id", err)
		}
		if parsed != subject {
			return nil, apierr.Forbidden("forbidden", fmt.Errorf("userId does not match the authenticated user"))
		}
	}
	videoID, err := uuid.Parse(strings.TrimSpace(req.VideoID))
	if err != nil || videoID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_video_id", fmt.Errorf("missing or invalid videoId"))
	}
	prompt := strings.TrimSpace(req.Prompt)
	if name == WorkflowThumbnail && prompt == "" {
		return nil, apierr.BadRequest("missing_prompt", fmt.Errorf("thumbnail workflow requires a prompt"))
	}

	payload := map[string]any{
		"video_id": videoID.String(),
		"user_id":  userID.String(),
	}
	if prompt != "" {
		payload["prompt"] = prompt
	}
	entityID := videoID
	job, err := s.jobs.Enqueue(dbc, userID, jobType, jobstatus.EntityTypeVideo, &entityID, payload)
	if err != nil {
		if job != nil {
			// Persisted but not dispatched; the polling worker can still run it.
			s.log.Warn("Workflow dispatch failed", "job_id", job.ID, "workflow", name, "error", err)
			return job, nil
		}
		return nil, err
	}
	s.log.Info("Workflow triggered", "workflow", name, "job_id", job.ID, "video_id", videoID)
	return job, nil
}
