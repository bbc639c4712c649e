package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/domain/videos"
)

// SeedVideo inserts a waiting row for uploadID owned by ownerID.
func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, uploadID string) *videos.Video {
	tb.Helper()
	v := &videos.Video{
		ID:          uuid.New(),
		Title:       videos.DefaultTitle,
		OwnerUserID: ownerID,
		MuxUploadID: PtrString(uploadID),
		MuxStatus:   videos.StatusWaiting,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	return v
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

func PtrString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
