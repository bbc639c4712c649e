package videos

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the slot a mirrored object fills on the row.
type Role string

const (
	RoleThumbnail Role = "thumbnail"
	RolePreview   Role = "preview"
)

func (r Role) Valid() bool { return r == RoleThumbnail || r == RolePreview }

// KeyPrefix is the storage prefix owning every object of a video.
func KeyPrefix(videoID uuid.UUID) string {
	return fmt.Sprintf("videos/%s/", videoID)
}

// ObjectKey is a fresh, never reused key for a mirrored object.
func ObjectKey(videoID uuid.UUID, role Role, ext string) string {
	return fmt.Sprintf("%s%s-%s%s", KeyPrefix(videoID), role, uuid.NewString(), ext)
}
