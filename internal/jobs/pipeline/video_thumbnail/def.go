package video_thumbnail

import (
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// Pipeline replaces the video's thumbnail with a generated image.
type Pipeline struct {
	log    *logger.Logger
	deps   steps.Deps
	engine *orchestrator.Engine
}

func New(baseLog *logger.Logger, deps steps.Deps) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", jobstatus.JobTypeVideoThumbnail),
		deps:   deps,
		engine: orchestrator.NewEngine(),
	}
}

func (p *Pipeline) Type() string { return jobstatus.JobTypeVideoThumbnail }
