package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
	"github.com/yungbote/vidstream-backend/internal/platform/openai"
	"github.com/yungbote/vidstream-backend/internal/services"
)

// TextFetcher downloads a text document. httpx.Fetcher satisfies it.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type Deps struct {
	Log     *logger.Logger
	Videos  repos.VideoRepo
	Fetcher TextFetcher
	AI      openai.Client
	Mirror  services.AssetMirror
}

var (
	ErrEmptyTranscript = errors.New("empty transcript")
	ErrEmptyGeneration = errors.New("generator returned no content")
	ErrNoTrack         = errors.New("video has no playback or text track")
)

// VideoRef is what every step keys on: the row scoped to its owner.
type VideoRef struct {
	VideoID uuid.UUID
	OwnerID uuid.UUID
}

func (r VideoRef) ref() videos.Ref { return videos.Owned(r.VideoID, r.OwnerID) }

type VideoSnapshot struct {
	VideoID      uuid.UUID `json:"video_id"`
	PlaybackID   string    `json:"playback_id"`
	TrackID      string    `json:"track_id"`
	ThumbnailKey string    `json:"thumbnail_key"`
}

// GetVideo loads the owned row. A missing row is videos.ErrNotFound.
func GetVideo(ctx context.Context, deps Deps, in VideoRef) (VideoSnapshot, error) {
	v, err := deps.Videos.Resolve(dbctx.Context{Ctx: ctx}, in.ref())
	if err != nil {
		return VideoSnapshot{}, err
	}
	key, _ := v.Mirrored(videos.RoleThumbnail)
	return VideoSnapshot{
		VideoID:      v.ID,
		PlaybackID:   v.PlaybackID(),
		TrackID:      v.TrackID(),
		ThumbnailKey: key,
	}, nil
}

// GetTranscript downloads the generated subtitle track as plain text.
func GetTranscript(ctx context.Context, deps Deps, playbackID, trackID string) (string, error) {
	if strings.TrimSpace(playbackID) == "" || strings.TrimSpace(trackID) == "" {
		return "", ErrNoTrack
	}
	text, err := deps.Fetcher.FetchText(ctx, mux.TranscriptURL(playbackID, trackID))
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// GenerateText asks the model for a title or description of transcript.
func GenerateText(ctx context.Context, deps Deps, kind TextKind, transcript string) (string, error) {
	out, err := deps.AI.GenerateText(ctx, SystemPrompt(kind), transcript)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	out = cleanGenerated(out, maxChars(kind))
	if out == "" {
		return "", ErrEmptyGeneration
	}
	return out, nil
}

func cleanGenerated(s string, limit int) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	s = strings.TrimSpace(s)
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}

// UpdateVideoText writes the generated title or description.
func UpdateVideoText(ctx context.Context, deps Deps, in VideoRef, kind TextKind, text string) (*types.Video, error) {
	return deps.Videos.Mutate(dbctx.Context{Ctx: ctx}, in.ref(), func(v *types.Video) error {
		switch kind {
		case TextDescription:
			v.Description = text
		default:
			v.Title = text
		}
		return nil
	})
}

// DeleteOldThumbnail removes the mirrored thumbnail and nulls its columns.
func DeleteOldThumbnail(ctx context.Context, deps Deps, in VideoRef) error {
	_, err := deps.Mirror.Clear(ctx, in.VideoID, in.OwnerID, videos.RoleThumbnail)
	return err
}

// GenerateImage returns the temporary URL of a generated thumbnail.
func GenerateImage(ctx context.Context, deps Deps, prompt string) (openai.ImageGeneration, error) {
	if strings.TrimSpace(prompt) == "" {
		return openai.ImageGeneration{}, fmt.Errorf("missing prompt")
	}
	img, err := deps.AI.GenerateImage(ctx, prompt)
	if err != nil {
		return openai.ImageGeneration{}, fmt.Errorf("generate image: %w", err)
	}
	if strings.TrimSpace(img.URL) == "" {
		return openai.ImageGeneration{}, ErrEmptyGeneration
	}
	return img, nil
}

type StoredObject struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadThumbnail copies a temporary image into durable storage.
func UploadThumbnail(ctx context.Context, deps Deps, videoID uuid.UUID, sourceURL string) (StoredObject, error) {
	key, url, err := deps.Mirror.Store(ctx, videoID, videos.RoleThumbnail, sourceURL)
	if err != nil {
		return StoredObject{}, err
	}
	return StoredObject{Key: key, URL: url}, nil
}

// UpdateVideoThumbnail points the row at a stored thumbnail, removing any
// object it pointed at before.
func UpdateVideoThumbnail(ctx context.Context, deps Deps, in VideoRef, obj StoredObject) (*types.Video, error) {
	return deps.Mirror.AttachStored(ctx, in.ref(), videos.RoleThumbnail, obj.Key, obj.URL)
}

// ParseVideoRef reads the video and owner ids a run was enqueued with.
// An empty userID falls back to the run's owner.
func ParseVideoRef(videoID, userID string, fallbackOwner uuid.UUID) (VideoRef, error) {
	vid, err := uuid.Parse(strings.TrimSpace(videoID))
	if err != nil || vid == uuid.Nil {
		return VideoRef{}, fmt.Errorf("missing video_id")
	}
	owner := fallbackOwner
	if s := strings.TrimSpace(userID); s != "" {
		if owner, err = uuid.Parse(s); err != nil {
			return VideoRef{}, fmt.Errorf("invalid user_id: %w", err)
		}
	}
	if owner == uuid.Nil {
		return VideoRef{}, fmt.Errorf("missing user_id")
	}
	return VideoRef{VideoID: vid, OwnerID: owner}, nil
}
