package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/vidstream-backend/internal/domain"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/apierr"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
)

type fakeMux struct {
	passthrough string
	err         error
}

func (f *fakeMux) CreateUpload(ctx context.Context, passthrough string) (mux.Upload, error) {
	f.passthrough = passthrough
	if f.err != nil {
		return mux.Upload{}, f.err
	}
	return mux.Upload{ID: "up_" + passthrough[:8], URL: "https://storage.test/upload"}, nil
}

func TestVideoServiceCreateUpload(t *testing.T) {
	env := newTestEnv(t)
	fm := &fakeMux{}
	svc := NewVideoService(env.log, env.videos, fm, env.bucket, env.mirror)
	user := uuid.New()

	created, err := svc.CreateUpload(asUser(user))
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if created.UploadURL != "https://storage.test/upload" {
		t.Fatalf("upload url: got=%q", created.UploadURL)
	}
	v := created.Video
	if v.OwnerUserID != user || v.MuxStatus != videos.StatusWaiting || v.Title != videos.DefaultTitle {
		t.Fatalf("video: owner=%s status=%q title=%q", v.OwnerUserID, v.MuxStatus, v.Title)
	}
	if fm.passthrough != user.String() {
		t.Fatalf("passthrough: got=%q want=%q", fm.passthrough, user.String())
	}
	if _, err := env.videos.Resolve(dbctx.Context{Ctx: context.Background()}, videos.ByUpload(*v.MuxUploadID)); err != nil {
		t.Fatalf("row not correlatable by upload id: %v", err)
	}

	fm.err = errors.New("provider down")
	if _, err := svc.CreateUpload(asUser(user)); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestVideoServiceDeletePurgesStoredObjects(t *testing.T) {
	env := newTestEnv(t)
	svc := NewVideoService(env.log, env.videos, &fakeMux{}, env.bucket, env.mirror)
	owner := uuid.New()
	v := seedReady(t, env, owner, "up_1", "pb_1")
	dbc := dbctx.Context{Ctx: context.Background()}

	stored := map[gcp.BucketCategory]string{
		gcp.BucketCategoryThumbnail: videos.ObjectKey(v.ID, videos.RoleThumbnail, ".jpg"),
		gcp.BucketCategoryPreview:   videos.ObjectKey(v.ID, videos.RolePreview, ".gif"),
	}
	for cat, key := range stored {
		if err := env.bucket.UploadFile(dbc, cat, key, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("UploadFile: %v", err)
		}
	}
	other := seedReady(t, env, owner, "up_2", "pb_2")
	otherKey := videos.ObjectKey(other.ID, videos.RoleThumbnail, ".jpg")
	_ = env.bucket.UploadFile(dbc, gcp.BucketCategoryThumbnail, otherKey, bytes.NewReader([]byte("y")))

	err := svc.DeleteForRequestUser(asUser(uuid.New()), v.ID)
	if ae, ok := apierr.From(err); !ok || ae.Status != http.StatusNotFound {
		t.Fatalf("foreign delete: got=%v want 404", err)
	}
	if env.bucket.Len() != 3 {
		t.Fatalf("foreign delete touched storage: objects=%d", env.bucket.Len())
	}

	if err := svc.DeleteForRequestUser(asUser(owner), v.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if env.bucket.Len() != 1 || !env.bucket.Has(gcp.BucketCategoryThumbnail, otherKey) {
		t.Fatalf("purge: objects=%d", env.bucket.Len())
	}
	if _, err := svc.GetForRequestUser(asUser(owner), v.ID); err == nil {
		t.Fatalf("deleted video still readable")
	}
}

func TestVideoServiceRestoreNotReady(t *testing.T) {
	env := newTestEnv(t)
	svc := NewVideoService(env.log, env.videos, &fakeMux{}, env.bucket, env.mirror)
	owner := uuid.New()
	created, err := svc.CreateUpload(asUser(owner))
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}

	_, err = svc.RestoreThumbnailForRequestUser(asUser(owner), created.Video.ID)
	if ae, ok := apierr.From(err); !ok || ae.Status != http.StatusConflict {
		t.Fatalf("restore waiting video: got=%v want 409", err)
	}
}

func TestVideoServiceRestoreSupersededIsConflict(t *testing.T) {
	env := newTestEnv(t)
	svc := NewVideoService(env.log, env.videos, &fakeMux{}, env.bucket, env.mirror)
	owner := uuid.New()
	v := seedReady(t, env, owner, "up_1", "pb_1")
	env.fetcher.during = func() {
		_, err := env.videos.Mutate(dbctx.Context{Ctx: context.Background()}, videos.ByID(v.ID), func(v *types.Video) error {
			pb := "pb_2"
			v.MuxPlaybackID = &pb
			return nil
		})
		if err != nil {
			t.Errorf("swap playback id: %v", err)
		}
	}

	_, err := env.mirror.Restore(context.Background(), v.ID, owner)
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Restore: got=%v want=%v", err, ErrSuperseded)
	}
	if env.bucket.Len() != 0 {
		t.Fatalf("superseded restore left %d objects", env.bucket.Len())
	}

	env.fetcher.during = func() {
		_, _ = env.videos.Mutate(dbctx.Context{Ctx: context.Background()}, videos.ByID(v.ID), func(v *types.Video) error {
			pb := "pb_3"
			v.MuxPlaybackID = &pb
			return nil
		})
	}
	_, err = svc.RestoreThumbnailForRequestUser(asUser(owner), v.ID)
	if ae, ok := apierr.From(err); !ok || ae.Status != http.StatusConflict {
		t.Fatalf("restore superseded: got=%v want 409", err)
	}
}
