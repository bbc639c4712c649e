package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos/jobs"
	"github.com/yungbote/vidstream-backend/internal/data/repos/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type VideoRepo = videos.VideoRepo
type MutateFunc = videos.MutateFunc
type JobRunRepo = jobs.JobRunRepo
type JobRunEventRepo = jobs.JobRunEventRepo

func NewVideoRepo(db *gorm.DB, log *logger.Logger) VideoRepo { return videos.NewVideoRepo(db, log) }

func NewJobRunRepo(db *gorm.DB, log *logger.Logger) JobRunRepo { return jobs.NewJobRunRepo(db, log) }

func NewJobRunEventRepo(db *gorm.DB, log *logger.Logger) JobRunEventRepo {
	return jobs.NewJobRunEventRepo(db, log)
}
