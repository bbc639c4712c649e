package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/apierr"
	"github.com/yungbote/vidstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/gcp"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
)

type CreatedUpload struct {
	Video     *types.Video `json:"video"`
	UploadURL string       `json:"upload_url"`
}

type VideoService interface {
	CreateUpload(dbc dbctx.Context) (*CreatedUpload, error)
	GetForRequestUser(dbc dbctx.Context, videoID uuid.UUID) (*types.Video, error)
	// DeleteForRequestUser removes the row, then best-effort purges every
	// stored object under the video's key prefix.
	DeleteForRequestUser(dbc dbctx.Context, videoID uuid.UUID) error
	RestoreThumbnailForRequestUser(dbc dbctx.Context, videoID uuid.UUID) (*types.Video, error)
}

type videoService struct {
	log    *logger.Logger
	videos repos.VideoRepo
	mux    mux.Client
	bucket gcp.BucketService
	mirror AssetMirror
}

func NewVideoService(log *logger.Logger, videoRepo repos.VideoRepo, muxClient mux.Client, bucket gcp.BucketService, mirror AssetMirror) VideoService {
	return &videoService{
		log:    log.With("service", "VideoService"),
		videos: videoRepo,
		mux:    muxClient,
		bucket: bucket,
		mirror: mirror,
	}
}

func requestUser(dbc dbctx.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, apierr.Unauthorized("unauthenticated", fmt.Errorf("not authenticated"))
	}
	return rd.UserID, nil
}

func (s *videoService) CreateUpload(dbc dbctx.Context) (*CreatedUpload, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	if s.mux == nil {
		return nil, fmt.Errorf("upload provider not configured")
	}
	up, err := s.mux.CreateUpload(ctxutil.Default(dbc.Ctx), userID.String())
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	uploadID := up.ID
	v, err := s.videos.Create(dbc, &types.Video{
		Title:       videos.DefaultTitle,
		OwnerUserID: userID,
		Visibility:  videos.VisibilityPrivate,
		MuxStatus:   videos.StatusWaiting,
		MuxUploadID: &uploadID,
	})
	if err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	s.log.Info("Upload slot created", "video_id", v.ID, "upload_id", uploadID, "owner_user_id", userID)
	return &CreatedUpload{Video: v, UploadURL: up.URL}, nil
}

func (s *videoService) GetForRequestUser(dbc dbctx.Context, videoID uuid.UUID) (*types.Video, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	v, err := s.videos.Resolve(dbc, videos.Owned(videoID, userID))
	if err != nil {
		return nil, mapVideoErr(err)
	}
	return v, nil
}

func (s *videoService) DeleteForRequestUser(dbc dbctx.Context, videoID uuid.UUID) error {
	userID, err := requestUser(dbc)
	if err != nil {
		return err
	}
	n, err := s.videos.DeleteByRef(dbc, videos.Owned(videoID, userID))
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.NotFound("video_not_found", videos.ErrNotFound)
	}
	if s.bucket == nil {
		return nil
	}
	ctx := ctxutil.Default(dbc.Ctx)
	prefix := videos.KeyPrefix(videoID)
	for _, cat := range []gcp.BucketCategory{gcp.BucketCategoryThumbnail, gcp.BucketCategoryPreview} {
		if err := s.bucket.DeletePrefix(ctx, cat, prefix); err != nil {
			s.log.Warn("Purge stored objects failed", "video_id", videoID, "category", cat, "error", err)
		}
	}
	return nil
}

func (s *videoService) RestoreThumbnailForRequestUser(dbc dbctx.Context, videoID uuid.UUID) (*types.Video, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	v, err := s.mirror.Restore(ctxutil.Default(dbc.Ctx), videoID, userID)
	if err != nil {
		return nil, mapVideoErr(err)
	}
	return v, nil
}

func mapVideoErr(err error) error {
	switch {
	case errors.Is(err, videos.ErrNotFound):
		return apierr.NotFound("video_not_found", err)
	case errors.Is(err, videos.ErrInvalidRef):
		return apierr.BadRequest("invalid_video_id", err)
	case errors.Is(err, ErrNotReady):
		return apierr.Conflict("video_not_ready", err)
	case errors.Is(err, ErrSuperseded):
		return apierr.Conflict("playback_superseded", err)
	}
	return err
}
