package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type JobRunEventRepo interface {
	Create(dbc dbctx.Context, events []*domain.JobRunEvent) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*domain.JobRunEvent, error)
}

type jobRunEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunEventRepo(db *gorm.DB, baseLog *logger.Logger) JobRunEventRepo {
	return &jobRunEventRepo{db: db, log: baseLog.With("repo", "JobRunEventRepo")}
}

func (r *jobRunEventRepo) Create(dbc dbctx.Context, events []*domain.JobRunEvent) error {
	if len(events) == 0 {
		return nil
	}
	return dbc.Or(r.db).Create(&events).Error
}

func (r *jobRunEventRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*domain.JobRunEvent, error) {
	var out []*domain.JobRunEvent
	if jobID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
