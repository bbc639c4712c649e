package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type Repos struct {
	Video       repos.VideoRepo
	JobRun      repos.JobRunRepo
	JobRunEvent repos.JobRunEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Video:       repos.NewVideoRepo(db, log),
		JobRun:      repos.NewJobRunRepo(db, log),
		JobRunEvent: repos.NewJobRunEventRepo(db, log),
	}
}
