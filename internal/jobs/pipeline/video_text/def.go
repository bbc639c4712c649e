package video_text

import (
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// Pipeline generates a title or description from the video's transcript.
type Pipeline struct {
	log    *logger.Logger
	deps   steps.Deps
	kind   steps.TextKind
	engine *orchestrator.Engine
}

func New(baseLog *logger.Logger, deps steps.Deps, kind steps.TextKind) *Pipeline {
	p := &Pipeline{deps: deps, kind: kind, engine: orchestrator.NewEngine()}
	p.log = baseLog.With("job", p.Type())
	return p
}

func (p *Pipeline) Type() string {
	if p.kind == steps.TextDescription {
		return jobstatus.JobTypeVideoDescription
	}
	return jobstatus.JobTypeVideoTitle
}
