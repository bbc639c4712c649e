package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
)

// Fetcher downloads a remote object. httpx.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

var (
	// ErrSuperseded reports a mirror write for a playback id the row no
	// longer carries.
	ErrSuperseded = errors.New("mirror superseded")
	ErrNotReady   = errors.New("video has no playback id yet")
)

// MirrorResult describes a finished mirror.
type MirrorResult struct {
	Video   *types.Video
	Key     string
	URL     string
	Skipped string
}

type AssetMirror interface {
	// Schedule enqueues a durable asset_mirror job for task.
	Schedule(dbc dbctx.Context, v *types.Video, task videos.MirrorTask) (*types.JobRun, error)
	// Mirror fetches task.SourceURL, replaces the stored object for the role
	// and writes key + URL onto the row. A deleted row or a superseded
	// playback id ends in a skipped result, not an error.
	Mirror(ctx context.Context, ref videos.Ref, task videos.MirrorTask) (MirrorResult, error)
	// Store uploads the source under a fresh key without touching the row.
	Store(ctx context.Context, videoID uuid.UUID, role videos.Role, sourceURL string) (key, url string, err error)
	// Attach writes key + URL for role onto the row and deletes whatever
	// object the row pointed at before. With a non-empty playbackID the
	// write only lands while the row still carries that playback id.
	Attach(ctx context.Context, ref videos.Ref, role videos.Role, key, url, playbackID string) (*types.Video, error)
	// AttachStored is Attach for an object the caller keeps a record of: a
	// failed write leaves the object in storage so a retry can attach it.
	AttachStored(ctx context.Context, ref videos.Ref, role videos.Role, key, url string) (*types.Video, error)
	Clear(ctx context.Context, videoID, ownerID uuid.UUID, role videos.Role) (*types.Video, error)
	Restore(ctx context.Context, videoID, ownerID uuid.UUID) (*types.Video, error)
}

type assetMirror struct {
	log         *logger.Logger
	videos      repos.VideoRepo
	bucket      gcp.BucketService
	fetcher     Fetcher
	jobs        JobService
	maxAttempts int
}

func NewAssetMirror(log *logger.Logger, videoRepo repos.VideoRepo, bucket gcp.BucketService, fetcher Fetcher, jobs JobService, maxAttempts int) AssetMirror {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &assetMirror{
		log:         log.With("service", "AssetMirror"),
		videos:      videoRepo,
		bucket:      bucket,
		fetcher:     fetcher,
		jobs:        jobs,
		maxAttempts: maxAttempts,
	}
}

func categoryFor(role videos.Role) gcp.BucketCategory {
	if role == videos.RolePreview {
		return gcp.BucketCategoryPreview
	}
	return gcp.BucketCategoryThumbnail
}

func (m *assetMirror) Schedule(dbc dbctx.Context, v *types.Video, task videos.MirrorTask) (*types.JobRun, error) {
	if v == nil || v.ID == uuid.Nil {
		return nil, fmt.Errorf("schedule mirror: missing video")
	}
	if !task.Role.Valid() {
		return nil, fmt.Errorf("schedule mirror: invalid role %q", task.Role)
	}
	if m.jobs == nil {
		return nil, fmt.Errorf("schedule mirror: job service not configured")
	}
	entityID := v.ID
	payload := map[string]any{
		"video_id":    v.ID.String(),
		"role":        string(task.Role),
		"source_url":  task.SourceURL,
		"playback_id": task.PlaybackID,
	}
	return m.jobs.EnqueueRetryable(dbc, v.OwnerUserID, jobstatus.JobTypeAssetMirror, jobstatus.EntityTypeVideo, &entityID, payload, m.maxAttempts)
}

func (m *assetMirror) Mirror(ctx context.Context, ref videos.Ref, task videos.MirrorTask) (MirrorResult, error) {
	if !task.Role.Valid() {
		return MirrorResult{}, fmt.Errorf("mirror: invalid role %q", task.Role)
	}
	if strings.TrimSpace(task.SourceURL) == "" {
		return MirrorResult{}, fmt.Errorf("mirror: missing source url")
	}
	cur, err := m.videos.Resolve(dbctx.Context{Ctx: ctx}, ref)
	if errors.Is(err, videos.ErrNotFound) {
		return MirrorResult{Skipped: "video_deleted"}, nil
	}
	if err != nil {
		return MirrorResult{}, err
	}
	if task.PlaybackID != "" && cur.PlaybackID() != task.PlaybackID {
		return MirrorResult{Video: cur, Skipped: "superseded"}, nil
	}

	key, url, err := m.Store(ctx, cur.ID, task.Role, task.SourceURL)
	if err != nil {
		return MirrorResult{}, err
	}
	v, err := m.Attach(ctx, videos.ByID(cur.ID), task.Role, key, url, task.PlaybackID)
	switch {
	case errors.Is(err, videos.ErrNotFound):
		return MirrorResult{Skipped: "video_deleted"}, nil
	case errors.Is(err, ErrSuperseded):
		return MirrorResult{Skipped: "superseded"}, nil
	case err != nil:
		return MirrorResult{}, err
	}
	m.log.Debug("Asset mirrored", "video_id", cur.ID, "role", task.Role, "key", key)
	return MirrorResult{Video: v, Key: key, URL: url}, nil
}

func (m *assetMirror) Store(ctx context.Context, videoID uuid.UUID, role videos.Role, sourceURL string) (string, string, error) {
	data, contentType, err := m.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", role, err)
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("fetch %s: empty body", role)
	}
	ext := gcp.ExtForContentType(contentType, defaultExt(role))
	key := videos.ObjectKey(videoID, role, ext)
	cat := categoryFor(role)
	if err := m.bucket.UploadFile(dbctx.Context{Ctx: ctx}, cat, key, bytes.NewReader(data)); err != nil {
		return "", "", fmt.Errorf("upload %s: %w", role, err)
	}
	return key, m.bucket.GetPublicURL(cat, key), nil
}

func defaultExt(role videos.Role) string {
	if role == videos.RolePreview {
		return ".gif"
	}
	return ".jpg"
}

func (m *assetMirror) Attach(ctx context.Context, ref videos.Ref, role videos.Role, key, url, playbackID string) (*types.Video, error) {
	return m.attach(ctx, ref, role, key, url, playbackID, true)
}

func (m *assetMirror) AttachStored(ctx context.Context, ref videos.Ref, role videos.Role, key, url string) (*types.Video, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("attach %s: missing key", role)
	}
	return m.attach(ctx, ref, role, key, url, "", false)
}

func (m *assetMirror) attach(ctx context.Context, ref videos.Ref, role videos.Role, key, url, playbackID string, dropOnFail bool) (*types.Video, error) {
	cat := categoryFor(role)
	var replaced string
	v, err := m.videos.Mutate(dbctx.Context{Ctx: ctx}, ref, func(v *types.Video) error {
		if playbackID != "" && v.PlaybackID() != playbackID {
			return ErrSuperseded
		}
		replaced, _ = v.Mirrored(role)
		v.SetMirrored(role, key, url)
		return nil
	})
	if err != nil {
		// The fresh object never made it onto a row.
		if dropOnFail && key != "" {
			m.deleteObject(ctx, cat, key)
		}
		return nil, err
	}
	if replaced != "" && replaced != key {
		m.deleteObject(ctx, cat, replaced)
	}
	return v, nil
}

func (m *assetMirror) Clear(ctx context.Context, videoID, ownerID uuid.UUID, role videos.Role) (*types.Video, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("clear: invalid role %q", role)
	}
	var old string
	v, err := m.videos.Mutate(dbctx.Context{Ctx: ctx}, videos.Owned(videoID, ownerID), func(v *types.Video) error {
		old, _ = v.Mirrored(role)
		v.SetMirrored(role, "", "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if old != "" {
		m.deleteObject(ctx, categoryFor(role), old)
	}
	return v, nil
}

func (m *assetMirror) Restore(ctx context.Context, videoID, ownerID uuid.UUID) (*types.Video, error) {
	cur, err := m.videos.Resolve(dbctx.Context{Ctx: ctx}, videos.Owned(videoID, ownerID))
	if err != nil {
		return nil, err
	}
	pb := cur.PlaybackID()
	if pb == "" {
		return nil, ErrNotReady
	}
	res, err := m.Mirror(ctx, videos.Owned(videoID, ownerID), videos.MirrorTask{
		Role:       videos.RoleThumbnail,
		SourceURL:  mux.ThumbnailURL(pb),
		PlaybackID: pb,
	})
	if err != nil {
		return nil, err
	}
	switch {
	case res.Skipped == "superseded":
		return nil, ErrSuperseded
	case res.Video == nil:
		return nil, videos.ErrNotFound
	}
	return res.Video, nil
}

func (m *assetMirror) deleteObject(ctx context.Context, cat gcp.BucketCategory, key string) {
	if err := m.bucket.DeleteFile(dbctx.Context{Ctx: ctx}, cat, key); err != nil {
		m.log.Warn("Delete stored object failed", "category", cat, "key", key, "error", err)
	}
}
