package domain

import (
	"github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
)

type (
	Video       = videos.Video
	JobRun      = jobs.JobRun
	JobRunEvent = jobs.JobRunEvent
)

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Video{},
		&JobRun{},
		&JobRunEvent{},
	}
}
