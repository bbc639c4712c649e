package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp/gcptest"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type fakeFetcher struct {
	mu          sync.Mutex
	calls       []string
	body        []byte
	contentType string
	err         error
	// during runs inside Fetch, standing in for writes that land mid-download.
	during func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, "", f.err
	}
	return f.body, f.contentType, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memoryDeduper is an in-process redis.Deduper.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemoryDeduper() *memoryDeduper { return &memoryDeduper{seen: map[string]bool{}} }

func (d *memoryDeduper) Seen(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.seen[id], nil
}

func (d *memoryDeduper) Remember(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

type testEnv struct {
	log     *logger.Logger
	db      *gorm.DB
	videos  repos.VideoRepo
	jobRuns repos.JobRunRepo
	events  repos.JobRunEventRepo
	jobs    JobService
	bucket  *gcptest.MemoryBucket
	fetcher *fakeFetcher
	mirror  AssetMirror
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	env := &testEnv{
		log:     log,
		db:      db,
		videos:  repos.NewVideoRepo(db, log),
		jobRuns: repos.NewJobRunRepo(db, log),
		events:  repos.NewJobRunEventRepo(db, log),
		bucket:  gcptest.NewMemoryBucket(),
		fetcher: &fakeFetcher{body: []byte("jpeg-bytes"), contentType: "image/jpeg"},
	}
	env.jobs = NewJobService(db, log, env.jobRuns, env.events, NewJobNotifier(log, nil), nil, "")
	env.mirror = NewAssetMirror(log, env.videos, env.bucket, env.fetcher, env.jobs, 3)
	return env
}

func asUser(userID uuid.UUID) dbctx.Context {
	return dbctx.Context{Ctx: ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})}
}

// fakeJobService records Enqueue calls; dispatchErr simulates a persisted
// job whose dispatch failed.
type fakeJobService struct {
	JobService
	mu          sync.Mutex
	enqueued    []enqueueCall
	dispatchErr error
	enqueueErr  error
}

type enqueueCall struct {
	owner   uuid.UUID
	jobType string
	payload map[string]any
}

var errDispatch = errors.New("temporal unavailable")

func (f *fakeJobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, enqueueCall{owner: ownerUserID, jobType: jobType, payload: payload})
	job := &types.JobRun{ID: uuid.New(), OwnerUserID: ownerUserID, JobType: jobType, Status: jobstatus.StatusQueued}
	return job, f.dispatchErr
}
