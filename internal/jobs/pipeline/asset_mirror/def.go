package asset_mirror

import (
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/services"
)

// Pipeline copies one provider-hosted object into storage. Failures go
// back to the queue with backoff until the job's attempts run out.
type Pipeline struct {
	log    *logger.Logger
	mirror services.AssetMirror
	engine *orchestrator.Engine
}

func New(baseLog *logger.Logger, mirror services.AssetMirror) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", jobstatus.JobTypeAssetMirror),
		mirror: mirror,
		engine: orchestrator.NewEngine(),
	}
}

func (p *Pipeline) Type() string { return jobstatus.JobTypeAssetMirror }
