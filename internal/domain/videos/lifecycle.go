package videos

import (
	"fmt"
	"math"
	"strings"

	"github.com/yungbote/vidstream-backend/internal/platform/mux"
)

// Patch is the set of lifecycle columns an event overwrites. Nil fields
// are left untouched.
type Patch struct {
	Status       *string
	AssetID      *string
	PlaybackID   *string
	TrackID      *string
	TrackStatus  *string
	DurationMs   *int64
	ThumbnailURL *string
	PreviewURL   *string
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.AssetID == nil && p.PlaybackID == nil && p.TrackID == nil &&
		p.TrackStatus == nil && p.DurationMs == nil && p.ThumbnailURL == nil && p.PreviewURL == nil
}

// Apply overwrites v's fields. Applying the same patch twice is a no-op
// the second time.
func (p Patch) Apply(v *Video) {
	if p.Status != nil {
		v.MuxStatus = *p.Status
	}
	if p.AssetID != nil {
		v.MuxAssetID = strPtr(*p.AssetID)
	}
	if p.PlaybackID != nil {
		v.MuxPlaybackID = strPtr(*p.PlaybackID)
	}
	if p.TrackID != nil {
		v.MuxTrackID = strPtr(*p.TrackID)
	}
	if p.TrackStatus != nil {
		v.MuxTrackStatus = *p.TrackStatus
	}
	if p.DurationMs != nil {
		v.DurationMs = *p.DurationMs
	}
	if p.ThumbnailURL != nil {
		v.ThumbnailURL = strPtr(*p.ThumbnailURL)
	}
	if p.PreviewURL != nil {
		v.PreviewURL = strPtr(*p.PreviewURL)
	}
}

// MirrorTask asks for a provider-hosted object to be copied into storage.
// PlaybackID pins the task to the asset generation that scheduled it.
type MirrorTask struct {
	Role       Role   `json:"role"`
	SourceURL  string `json:"source_url"`
	PlaybackID string `json:"playback_id"`
}

// Transition is the outcome of one webhook event.
type Transition struct {
	EventType string
	Ref       Ref
	Delete    bool
	Patch     Patch
	Mirrors   []MirrorTask
}

// Ignored reports an event type with no effect.
func (t Transition) Ignored() bool {
	return !t.Delete && t.Patch.Empty() && len(t.Mirrors) == 0
}

// Plan derives the transition for evt from the event alone; the current
// row is never consulted. A missing correlation field is ErrInvalidEvent.
func Plan(evt mux.Event) (Transition, error) {
	out := Transition{EventType: evt.Type}
	switch evt.Type {
	case mux.EventAssetCreated, mux.EventAssetReady, mux.EventAssetErrored,
		mux.EventAssetDeleted, mux.EventAssetTrackReady:
	default:
		return out, nil
	}

	data, err := evt.Asset()
	if err != nil {
		return out, fmt.Errorf("%w: decode data: %v", ErrInvalidEvent, err)
	}

	if evt.Type == mux.EventAssetTrackReady {
		assetID := strings.TrimSpace(data.AssetID)
		if assetID == "" {
			return out, fmt.Errorf("%w: missing asset id", ErrInvalidEvent)
		}
		out.Ref = ByAsset(assetID)
		out.Patch.TrackID = nonEmpty(data.ID)
		// The provider's track status is mirrored onto the video status too.
		out.Patch.TrackStatus = nonEmpty(data.Status)
		out.Patch.Status = nonEmpty(data.Status)
		return out, nil
	}

	uploadID := strings.TrimSpace(data.UploadID)
	if uploadID == "" {
		return out, fmt.Errorf("%w: missing upload id", ErrInvalidEvent)
	}
	out.Ref = ByUpload(uploadID)

	switch evt.Type {
	case mux.EventAssetCreated:
		out.Patch.AssetID = nonEmpty(data.ID)
		out.Patch.Status = nonEmpty(data.Status)
	case mux.EventAssetReady:
		playbackID := ""
		if len(data.PlaybackIDs) > 0 {
			playbackID = strings.TrimSpace(data.PlaybackIDs[0].ID)
		}
		if playbackID == "" {
			return out, fmt.Errorf("%w: missing playback id", ErrInvalidEvent)
		}
		thumb, preview := mux.ThumbnailURL(playbackID), mux.PreviewURL(playbackID)
		out.Patch.Status = ptr(data.Status)
		out.Patch.AssetID = ptr(strings.TrimSpace(data.ID))
		out.Patch.PlaybackID = ptr(playbackID)
		out.Patch.DurationMs = ptr(DurationMillis(data.Duration))
		out.Patch.ThumbnailURL = ptr(thumb)
		out.Patch.PreviewURL = ptr(preview)
		out.Mirrors = []MirrorTask{
			{Role: RoleThumbnail, SourceURL: thumb, PlaybackID: playbackID},
			{Role: RolePreview, SourceURL: preview, PlaybackID: playbackID},
		}
	case mux.EventAssetErrored:
		out.Patch.Status = nonEmpty(data.Status)
	case mux.EventAssetDeleted:
		out.Delete = true
	}
	return out, nil
}

// DurationMillis converts provider seconds to whole milliseconds, rounding
// half away from zero. Missing or non-finite input is 0.
func DurationMillis(seconds *float64) int64 {
	if seconds == nil || math.IsNaN(*seconds) || math.IsInf(*seconds, 0) || *seconds <= 0 {
		return 0
	}
	return int64(math.Round(*seconds * 1000))
}

func ptr[T any](v T) *T { return &v }

// nonEmpty leaves absent payload fields out of the patch.
func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
