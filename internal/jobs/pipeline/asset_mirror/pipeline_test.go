package asset_mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/jobs/jobtest"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp/gcptest"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
	"github.com/yungbote/vidstream-backend/internal/services"
)

func setup(t *testing.T) (*jobtest.Env, *gcptest.MemoryBucket, *jobtest.Fetcher, *Pipeline) {
	t.Helper()
	log := testutil.Logger(t)
	env := jobtest.NewEnv(t)
	bucket := gcptest.NewMemoryBucket()
	fetcher := &jobtest.Fetcher{Body: []byte("gif-bytes"), ContentType: "image/gif"}
	mirror := services.NewAssetMirror(log, env.Videos, bucket, fetcher, nil, 3)
	return env, bucket, fetcher, New(log, mirror)
}

func payload(videoID uuid.UUID, role videos.Role, playbackID string) map[string]any {
	src := mux.ThumbnailURL(playbackID)
	if role == videos.RolePreview {
		src = mux.PreviewURL(playbackID)
	}
	return map[string]any{
		"video_id":    videoID.String(),
		"role":        string(role),
		"source_url":  src,
		"playback_id": playbackID,
	}
}

func TestAssetMirrorJobStoresPreview(t *testing.T) {
	env, bucket, _, p := setup(t)
	owner := uuid.New()
	v := env.ReadyVideo(t, owner, "up_1", "pb_1", "")

	jc := env.Run(t, p.Type(), owner, payload(v.ID, videos.RolePreview, "pb_1"), 3)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job := env.Stored(t, jc.Job.ID); job.Status != jobstatus.StatusSucceeded {
		t.Fatalf("job: status=%q error=%q", job.Status, job.Error)
	}
	key, _ := env.Video(t, v.ID).Mirrored(videos.RolePreview)
	if key == "" || !bucket.Has(gcp.BucketCategoryPreview, key) {
		t.Fatalf("preview key=%q stored=%v", key, bucket.Has(gcp.BucketCategoryPreview, key))
	}
}

func TestAssetMirrorJobRetriesThenDies(t *testing.T) {
	env, _, fetcher, p := setup(t)
	owner := uuid.New()
	v := env.ReadyVideo(t, owner, "up_1", "pb_1", "")
	fetcher.Err = errors.New("origin 503")

	jc := env.Run(t, p.Type(), owner, payload(v.ID, videos.RoleThumbnail, "pb_1"), 2)
	_ = p.Run(jc)
	job := env.Stored(t, jc.Job.ID)
	if job.Status != jobstatus.StatusQueued || job.NextRunAt == nil {
		t.Fatalf("first failure: status=%q next_run_at=%v", job.Status, job.NextRunAt)
	}

	job.Status = jobstatus.StatusRunning
	job.Attempts = 2
	jc = env.Resume(t, job)
	_ = p.Run(jc)
	if got := env.Stored(t, job.ID).Status; got != jobstatus.StatusDead {
		t.Fatalf("exhausted: status=%q want=%q", got, jobstatus.StatusDead)
	}
}

func TestAssetMirrorJobSupersededSucceeds(t *testing.T) {
	env, bucket, fetcher, p := setup(t)
	owner := uuid.New()
	v := env.ReadyVideo(t, owner, "up_1", "pb_2", "")

	jc := env.Run(t, p.Type(), owner, payload(v.ID, videos.RoleThumbnail, "pb_1"), 3)
	_ = p.Run(jc)
	if job := env.Stored(t, jc.Job.ID); job.Status != jobstatus.StatusSucceeded {
		t.Fatalf("job: status=%q", job.Status)
	}
	if bucket.Len() != 0 || len(fetcher.Calls) != 0 {
		t.Fatalf("superseded mirror did work: objects=%d fetches=%d", bucket.Len(), len(fetcher.Calls))
	}
}

func TestAssetMirrorJobInvalidPayload(t *testing.T) {
	env, _, _, p := setup(t)
	jc := env.Run(t, p.Type(), uuid.New(), map[string]any{"video_id": uuid.NewString(), "role": "poster"}, 3)
	_ = p.Run(jc)
	if job := env.Stored(t, jc.Job.ID); job.Status != jobstatus.StatusFailed || job.Stage != "validate" {
		t.Fatalf("job: status=%q stage=%q", job.Status, job.Stage)
	}
}

func TestReadyWebhookThenMirrorJobs(t *testing.T) {
	const secret = "whsec_test"
	log := testutil.Logger(t)
	env := jobtest.NewEnv(t)
	jobs := services.NewJobService(env.DB, log, env.Jobs, env.Events, nil, nil, "")
	bucket := gcptest.NewMemoryBucket()
	fetcher := &jobtest.Fetcher{Body: []byte("img-bytes"), ContentType: "image/jpeg"}
	mirror := services.NewAssetMirror(log, env.Videos, bucket, fetcher, jobs, 3)
	webhooks := services.NewWebhookService(log, env.Videos, mirror, nil, secret, 5*time.Minute)
	p := New(log, mirror)

	owner := uuid.New()
	seeded := testutil.SeedVideo(t, context.Background(), env.DB, owner, "up_1")
	body := []byte(`{"type":"video.asset.ready","data":{"id":"asset_1","upload_id":"up_1","status":"ready","duration":65.0,"playback_ids":[{"id":"pb_1","policy":"public"}]}}`)
	res, err := webhooks.Ingest(context.Background(), mux.Sign(body, secret, time.Now()), body)
	if err != nil || res.Outcome != services.OutcomeApplied {
		t.Fatalf("Ingest: outcome=%q err=%v", res.Outcome, err)
	}
	if len(res.MirrorJobs) != 2 {
		t.Fatalf("mirror jobs: got=%d want=2", len(res.MirrorJobs))
	}
	if key, url := env.Video(t, seeded.ID).Mirrored(videos.RoleThumbnail); key != "" || url != mux.ThumbnailURL("pb_1") {
		t.Fatalf("before mirror: key=%q url=%q", key, url)
	}

	for _, id := range res.MirrorJobs {
		job := env.Stored(t, id)
		job.Status = jobstatus.StatusRunning
		job.Attempts = 1
		if err := p.Run(env.Resume(t, job)); err != nil {
			t.Fatalf("Run %s: %v", id, err)
		}
		if got := env.Stored(t, id); got.Status != jobstatus.StatusSucceeded {
			t.Fatalf("job %s: status=%q error=%q", id, got.Status, got.Error)
		}
	}

	v := env.Video(t, seeded.ID)
	key, url := v.Mirrored(videos.RoleThumbnail)
	if key == "" || url != bucket.GetPublicURL(gcp.BucketCategoryThumbnail, key) || url == mux.ThumbnailURL("pb_1") {
		t.Fatalf("thumbnail: key=%q url=%q", key, url)
	}
	if pkey, _ := v.Mirrored(videos.RolePreview); pkey == "" || !bucket.Has(gcp.BucketCategoryPreview, pkey) {
		t.Fatalf("preview key=%q", pkey)
	}
	if v.MuxStatus != videos.StatusReady || v.PlaybackID() != "pb_1" || v.DurationMs != 65000 {
		t.Fatalf("row: status=%q playback=%q duration=%d", v.MuxStatus, v.PlaybackID(), v.DurationMs)
	}
	if bucket.Len() != 2 {
		t.Fatalf("objects: got=%d want=2", bucket.Len())
	}
}
