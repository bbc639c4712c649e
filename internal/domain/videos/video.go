package videos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"

	StatusWaiting = "waiting"
	StatusReady   = "ready"

	DefaultTitle = "Untitled"
)

// Video is the central row. Provider ids are nullable so the unique
// indexes only bind once a value is assigned.
type Video struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description,omitempty"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;column:owner_user_id;not null;index" json:"owner_user_id"`
	CategoryID  *uuid.UUID `gorm:"type:uuid;column:category_id;index" json:"category_id,omitempty"`
	Visibility  string     `gorm:"column:visibility;not null;default:private" json:"visibility"`

	MuxUploadID    *string `gorm:"column:mux_upload_id;uniqueIndex" json:"mux_upload_id,omitempty"`
	MuxAssetID     *string `gorm:"column:mux_asset_id;uniqueIndex" json:"mux_asset_id,omitempty"`
	MuxPlaybackID  *string `gorm:"column:mux_playback_id;uniqueIndex" json:"mux_playback_id,omitempty"`
	MuxTrackID     *string `gorm:"column:mux_track_id;uniqueIndex" json:"mux_track_id,omitempty"`
	MuxStatus      string  `gorm:"column:mux_status" json:"mux_status"`
	MuxTrackStatus string  `gorm:"column:mux_track_status" json:"mux_track_status,omitempty"`
	DurationMs     int64   `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`

	ThumbnailKey *string `gorm:"column:thumbnail_key" json:"thumbnail_key,omitempty"`
	ThumbnailURL *string `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	PreviewKey   *string `gorm:"column:preview_key" json:"preview_key,omitempty"`
	PreviewURL   *string `gorm:"column:preview_url" json:"preview_url,omitempty"`

	Version   int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Video) TableName() string { return "videos" }

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Visibility == "" {
		v.Visibility = VisibilityPrivate
	}
	return nil
}

// MutableColumns is every column a version-checked write may change.
func (v *Video) MutableColumns() map[string]interface{} {
	return map[string]interface{}{
		"title":            v.Title,
		"description":      v.Description,
		"category_id":      v.CategoryID,
		"visibility":       v.Visibility,
		"mux_asset_id":     v.MuxAssetID,
		"mux_playback_id":  v.MuxPlaybackID,
		"mux_track_id":     v.MuxTrackID,
		"mux_status":       v.MuxStatus,
		"mux_track_status": v.MuxTrackStatus,
		"duration_ms":      v.DurationMs,
		"thumbnail_key":    v.ThumbnailKey,
		"thumbnail_url":    v.ThumbnailURL,
		"preview_key":      v.PreviewKey,
		"preview_url":      v.PreviewURL,
	}
}

// PlaybackID returns the playback id or "".
func (v *Video) PlaybackID() string { return deref(v.MuxPlaybackID) }

func (v *Video) TrackID() string { return deref(v.MuxTrackID) }

// Mirrored returns the stored key and URL for role.
func (v *Video) Mirrored(role Role) (key, url string) {
	switch role {
	case RoleThumbnail:
		return deref(v.ThumbnailKey), deref(v.ThumbnailURL)
	case RolePreview:
		return deref(v.PreviewKey), deref(v.PreviewURL)
	}
	return "", ""
}

// SetMirrored writes key and url for role. Empty values null the columns.
func (v *Video) SetMirrored(role Role, key, url string) {
	switch role {
	case RoleThumbnail:
		v.ThumbnailKey, v.ThumbnailURL = strPtr(key), strPtr(url)
	case RolePreview:
		v.PreviewKey, v.PreviewURL = strPtr(key), strPtr(url)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
