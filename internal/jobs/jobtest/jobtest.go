// Package jobtest holds fakes and fixtures shared by pipeline tests.
package jobtest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/openai"
)

type Env struct {
	DB     *gorm.DB
	Videos repos.VideoRepo
	Jobs   repos.JobRunRepo
	Events repos.JobRunEventRepo
}

func NewEnv(tb testing.TB) *Env {
	tb.Helper()
	db := testutil.DB(tb)
	log := testutil.Logger(tb)
	return &Env{
		DB:     db,
		Videos: repos.NewVideoRepo(db, log),
		Jobs:   repos.NewJobRunRepo(db, log),
		Events: repos.NewJobRunEventRepo(db, log),
	}
}

// Run inserts a running job_run and returns its execution context.
func (e *Env) Run(tb testing.TB, jobType string, owner uuid.UUID, payload map[string]any, maxAttempts int) *runtime.Context {
	tb.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("encode payload: %v", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     jobType,
		Status:      jobstatus.StatusRunning,
		Stage:       "running",
		Attempts:    1,
		MaxAttempts: maxAttempts,
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := e.Jobs.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		tb.Fatalf("create job: %v", err)
	}
	return runtime.NewContext(context.Background(), e.DB, job, e.Jobs, e.Events, nil)
}

// Resume writes job's status and attempts back and returns a fresh
// context over the same row, as a worker claiming it again would.
func (e *Env) Resume(tb testing.TB, job *types.JobRun) *runtime.Context {
	tb.Helper()
	err := e.Jobs.UpdateFields(dbctx.Context{Ctx: context.Background()}, job.ID, map[string]interface{}{
		"status":   job.Status,
		"attempts": job.Attempts,
	})
	if err != nil {
		tb.Fatalf("resume job: %v", err)
	}
	return runtime.NewContext(context.Background(), e.DB, job, e.Jobs, e.Events, nil)
}

// Stored re-reads a job_run row.
func (e *Env) Stored(tb testing.TB, id uuid.UUID) *types.JobRun {
	tb.Helper()
	job, err := e.Jobs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || job == nil {
		tb.Fatalf("GetByID %s: job=%v err=%v", id, job, err)
	}
	return job
}

// Video re-reads a video row.
func (e *Env) Video(tb testing.TB, id uuid.UUID) *types.Video {
	tb.Helper()
	v, err := e.Videos.Resolve(dbctx.Context{Ctx: context.Background()}, videos.ByID(id))
	if err != nil {
		tb.Fatalf("Resolve %s: %v", id, err)
	}
	return v
}

// ReadyVideo seeds a row that finished processing with a text track.
func (e *Env) ReadyVideo(tb testing.TB, owner uuid.UUID, uploadID, playbackID, trackID string) *types.Video {
	tb.Helper()
	ctx := context.Background()
	seeded := testutil.SeedVideo(tb, ctx, e.DB, owner, uploadID)
	v, err := e.Videos.Mutate(dbctx.Context{Ctx: ctx}, videos.ByID(seeded.ID), func(v *types.Video) error {
		v.MuxStatus = videos.StatusReady
		v.MuxPlaybackID = testutil.PtrString(playbackID)
		v.MuxTrackID = testutil.PtrString(trackID)
		return nil
	})
	if err != nil {
		tb.Fatalf("seed ready video: %v", err)
	}
	return v
}

// AI is a scripted openai.Client.
type AI struct {
	mu         sync.Mutex
	Text       string
	Image      openai.ImageGeneration
	Err        error
	TextCalls  int
	ImageCalls int
	Prompts    []string
}

var _ openai.Client = (*AI)(nil)

func (a *AI) GenerateText(ctx context.Context, system string, user string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.TextCalls++
	a.Prompts = append(a.Prompts, user)
	return a.Text, a.Err
}

func (a *AI) GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ImageCalls++
	a.Prompts = append(a.Prompts, prompt)
	return a.Image, a.Err
}

// Fetcher serves canned bodies by URL; unknown URLs return Body.
type Fetcher struct {
	mu          sync.Mutex
	Body        []byte
	ContentType string
	Text        map[string]string
	Err         error
	Calls       []string
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, url)
	if f.Err != nil {
		return nil, "", f.Err
	}
	return f.Body, f.ContentType, nil
}

func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, url)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text[url], nil
}
