package video_thumbnail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/jobs/jobtest"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp/gcptest"
	"github.com/yungbote/vidstream-backend/internal/platform/openai"
	"github.com/yungbote/vidstream-backend/internal/services"
)

type rig struct {
	env     *jobtest.Env
	bucket  *gcptest.MemoryBucket
	fetcher *jobtest.Fetcher
	ai      *jobtest.AI
	mirror  services.AssetMirror
	p       *Pipeline
}

// flakyVideos fails the failAt-th Mutate once.
type flakyVideos struct {
	repos.VideoRepo
	failAt int
	calls  int
}

func (f *flakyVideos) Mutate(dbc dbctx.Context, ref videos.Ref, fn repos.MutateFunc) (*types.Video, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("connection reset")
	}
	return f.VideoRepo.Mutate(dbc, ref, fn)
}

func newRig(t *testing.T) *rig {
	return newRigWith(t, nil)
}

func newRigWith(t *testing.T, wrap func(repos.VideoRepo) repos.VideoRepo) *rig {
	t.Helper()
	log := testutil.Logger(t)
	r := &rig{
		env:     jobtest.NewEnv(t),
		bucket:  gcptest.NewMemoryBucket(),
		fetcher: &jobtest.Fetcher{Body: []byte("png-bytes"), ContentType: "image/png"},
		ai:      &jobtest.AI{Image: openai.ImageGeneration{URL: "https://images.test/gen.png"}},
	}
	videoRepo := r.env.Videos
	if wrap != nil {
		videoRepo = wrap(videoRepo)
	}
	r.mirror = services.NewAssetMirror(log, videoRepo, r.bucket, r.fetcher, nil, 1)
	r.p = New(log, steps.Deps{Log: log, Videos: videoRepo, AI: r.ai, Mirror: r.mirror, Fetcher: r.fetcher})
	return r
}

func TestThumbnailReplacesStoredObject(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	owner := uuid.New()
	v := r.env.ReadyVideo(t, owner, "up_1", "pb_1", "")

	oldKey := videos.ObjectKey(v.ID, videos.RoleThumbnail, ".jpg")
	if err := r.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryThumbnail, oldKey, bytes.NewReader([]byte("old"))); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if _, err := r.mirror.Attach(ctx, videos.ByID(v.ID), videos.RoleThumbnail, oldKey, "https://cdn.test/old.jpg", ""); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	jc := r.env.Run(t, r.p.Type(), owner, map[string]any{"video_id": v.ID.String(), "prompt": "a sunset over water"}, 1)
	if err := r.p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job := r.env.Stored(t, jc.Job.ID)
	if job.Status != jobstatus.StatusSucceeded {
		t.Fatalf("job: status=%q stage=%q error=%q", job.Status, job.Stage, job.Error)
	}

	row := r.env.Video(t, v.ID)
	newKey, url := row.Mirrored(videos.RoleThumbnail)
	if newKey == "" || newKey == oldKey {
		t.Fatalf("thumbnail key: got=%q old=%q", newKey, oldKey)
	}
	if url != r.bucket.GetPublicURL(gcp.BucketCategoryThumbnail, newKey) {
		t.Fatalf("thumbnail url: got=%q", url)
	}
	if r.bucket.Len() != 1 || r.bucket.Has(gcp.BucketCategoryThumbnail, oldKey) {
		t.Fatalf("storage: objects=%d old still present=%v", r.bucket.Len(), r.bucket.Has(gcp.BucketCategoryThumbnail, oldKey))
	}
	if r.ai.ImageCalls != 1 || r.ai.Prompts[0] != "a sunset over water" {
		t.Fatalf("image generator: calls=%d prompts=%v", r.ai.ImageCalls, r.ai.Prompts)
	}
	if len(r.fetcher.Calls) != 1 || r.fetcher.Calls[0] != "https://images.test/gen.png" {
		t.Fatalf("fetches: %v", r.fetcher.Calls)
	}
}

func TestThumbnailMissingPromptFails(t *testing.T) {
	r := newRig(t)
	owner := uuid.New()
	v := r.env.ReadyVideo(t, owner, "up_1", "pb_1", "")

	jc := r.env.Run(t, r.p.Type(), owner, map[string]any{"video_id": v.ID.String()}, 1)
	_ = r.p.Run(jc)
	job := r.env.Stored(t, jc.Job.ID)
	if job.Status != jobstatus.StatusFailed || job.Stage != StageGenerateImage {
		t.Fatalf("job: status=%q stage=%q", job.Status, job.Stage)
	}
	if r.ai.ImageCalls != 0 {
		t.Fatalf("generator called without prompt")
	}
}

func TestThumbnailUploadFailureLeavesRowUnpointed(t *testing.T) {
	r := newRig(t)
	owner := uuid.New()
	v := r.env.ReadyVideo(t, owner, "up_1", "pb_1", "")
	r.bucket.FailUpload = context.DeadlineExceeded

	jc := r.env.Run(t, r.p.Type(), owner, map[string]any{"video_id": v.ID.String(), "prompt": "p"}, 1)
	_ = r.p.Run(jc)
	if job := r.env.Stored(t, jc.Job.ID); job.Status != jobstatus.StatusFailed || job.Stage != StageUploadThumbnail {
		t.Fatalf("job: status=%q stage=%q", job.Status, job.Stage)
	}
	if key, _ := r.env.Video(t, v.ID).Mirrored(videos.RoleThumbnail); key != "" {
		t.Fatalf("row points at %q after failed upload", key)
	}
}

func TestThumbnailRestartAfterFailedUpdateReusesStoredObject(t *testing.T) {
	// Mutate 1 is delete-old-thumbnail, mutate 2 is update-video.
	flaky := &flakyVideos{failAt: 2}
	r := newRigWith(t, func(inner repos.VideoRepo) repos.VideoRepo {
		flaky.VideoRepo = inner
		return flaky
	})
	owner := uuid.New()
	v := r.env.ReadyVideo(t, owner, "up_1", "pb_1", "")

	jc := r.env.Run(t, r.p.Type(), owner, map[string]any{"video_id": v.ID.String(), "prompt": "mountains"}, 1)
	_ = r.p.Run(jc)
	job := r.env.Stored(t, jc.Job.ID)
	if job.Status != jobstatus.StatusFailed || job.Stage != StageUpdateVideo {
		t.Fatalf("first run: status=%q stage=%q", job.Status, job.Stage)
	}
	if r.bucket.Len() != 1 {
		t.Fatalf("uploaded object dropped after failed write: objects=%d", r.bucket.Len())
	}

	job.Status = jobstatus.StatusRunning
	job.Attempts = 2
	_ = r.p.Run(r.env.Resume(t, job))
	if got := r.env.Stored(t, job.ID); got.Status != jobstatus.StatusSucceeded {
		t.Fatalf("restart: status=%q stage=%q error=%q", got.Status, got.Stage, got.Error)
	}

	key, url := r.env.Video(t, v.ID).Mirrored(videos.RoleThumbnail)
	if key == "" || !r.bucket.Has(gcp.BucketCategoryThumbnail, key) {
		t.Fatalf("row points at missing object: key=%q", key)
	}
	if url != r.bucket.GetPublicURL(gcp.BucketCategoryThumbnail, key) || r.bucket.Len() != 1 {
		t.Fatalf("storage: url=%q objects=%d", url, r.bucket.Len())
	}
	if r.ai.ImageCalls != 1 || len(r.fetcher.Calls) != 1 {
		t.Fatalf("checkpointed steps re-ran: images=%d fetches=%d", r.ai.ImageCalls, len(r.fetcher.Calls))
	}
}
