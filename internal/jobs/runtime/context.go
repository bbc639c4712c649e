package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/httpx"
	"github.com/yungbote/vidstream-backend/internal/services"
)

/*
Context is the execution handle for a single job run.
It wraps:
	- the request-scoped context.Context (timeouts, cancellation)
	- the DB handle
	- the in-memory job_run row
	- the notifier and the run's event ledger
Pipelines never touch job_run directly; every status transition goes
through Progress/Fail/Retry/Succeed.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Events repos.JobRunEventRepo
	Notify services.JobNotifier

	// RetryBase and RetryMax bound the backoff Retry schedules.
	RetryBase time.Duration
	RetryMax  time.Duration

	payload map[string]any
}

var guardStatuses = []string{jobstatus.StatusCanceled}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, events repos.JobRunEventRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:       ctx,
		DB:        db,
		Job:       job,
		Repo:      repo,
		Events:    events,
		Notify:    notify,
		RetryBase: 5 * time.Second,
		RetryMax:  10 * time.Minute,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

// decodePayload leaves an empty map behind on malformed JSON so handlers
// report the missing field instead.
func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// DecodePayload unmarshals the raw payload into out.
func (c *Context) DecodePayload(out any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(c.Job.Payload, out)
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

/*
Update writes arbitrary job_run fields, guarded so a canceled run is never
overwritten. Orchestrator state snapshots go through here; lifecycle
transitions should use Progress/Fail/Retry/Succeed.
*/
func (c *Context) Update(updates map[string]any) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, guardStatuses, toIfaceMap(updates))
	return err
}

// Heartbeat keeps a long step from being reclaimed as stale.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.ctx()}, c.Job.ID)
}

// Record appends an event to the run's ledger. Ledger failures never fail
// the run.
func (c *Context) Record(kind jobstatus.JobEventKind, message string, data any) {
	if c == nil || c.Events == nil || c.Job == nil {
		return
	}
	var raw datatypes.JSON
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	_ = c.Events.Create(dbctx.Context{Ctx: c.ctx()}, []*types.JobRunEvent{{
		JobID:       c.Job.ID,
		OwnerUserID: c.Job.OwnerUserID,
		JobType:     c.Job.JobType,
		Kind:        string(kind),
		Status:      c.Job.Status,
		Stage:       c.Job.Stage,
		Progress:    c.Job.Progress,
		Message:     message,
		Data:        raw,
		CreatedAt:   time.Now().UTC(),
	}})
}

func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, guardStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

// Fail marks the run terminally failed.
func (c *Context) Fail(stage string, err error) {
	c.finishWithError(jobstatus.StatusFailed, stage, err)
}

/*
Retry hands the run back to the queue with exponential backoff. Once the
run has used MaxAttempts it goes to dead instead and is never claimed
again. It returns the status the run ended in.
*/
func (c *Context) Retry(stage string, err error) string {
	if c == nil || c.Job == nil {
		return ""
	}
	if c.Job.Attempts >= c.Job.MaxAttempts {
		c.finishWithError(jobstatus.StatusDead, stage, err)
		return jobstatus.StatusDead
	}

	now := time.Now().UTC()
	next := now.Add(httpx.Backoff(c.Job.Attempts, c.RetryBase, c.RetryMax))
	msg := errMessage(err)
	if c.Repo != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, guardStatuses, map[string]interface{}{
			"status":        jobstatus.StatusQueued,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"next_run_at":   next,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return c.Job.Status
		}
	}
	c.Job.Status = jobstatus.StatusQueued
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.NextRunAt = &next
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	c.Record(jobstatus.JobEventRetrying, msg, map[string]any{
		"attempt":     c.Job.Attempts,
		"next_run_at": next,
	})
	return jobstatus.StatusQueued
}

func (c *Context) finishWithError(status, stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := errMessage(err)
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, guardStatuses, map[string]interface{}{
			"status":        status,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"next_run_at":   nil,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = status
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.NextRunAt = nil
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.Record(jobstatus.JobEventFailed, msg, map[string]any{"status": status})
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

// Succeed marks the run succeeded and stores result in job_run.result.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, guardStatuses, map[string]interface{}{
			"status":       jobstatus.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"next_run_at":  nil,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = jobstatus.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.NextRunAt = nil
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.Record(jobstatus.JobEventSucceeded, "", nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toIfaceMap(in map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
