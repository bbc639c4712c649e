package asset_mirror

import (
	"fmt"
	"time"

	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	jobrt "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
)

const StageMirror = "mirror"

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	videoID, ok := jc.PayloadUUID("video_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing video_id"))
		return nil
	}
	task := videos.MirrorTask{
		Role:       videos.Role(jc.PayloadString("role")),
		SourceURL:  jc.PayloadString("source_url"),
		PlaybackID: jc.PayloadString("playback_id"),
	}
	if !task.Role.Valid() || task.SourceURL == "" {
		jc.Fail("validate", fmt.Errorf("invalid mirror task role=%q source_url=%q", task.Role, task.SourceURL))
		return nil
	}

	stage := orchestrator.Stage{
		Name:     StageMirror,
		Timeout:  3 * time.Minute,
		StartPct: 0,
		EndPct:   100,
		StartMsg: "Mirroring " + string(task.Role),
		Retry:    orchestrator.RetryPolicy{Retryable: func(error) bool { return true }},
		Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
			res, err := p.mirror.Mirror(jc.Ctx, videos.ByID(videoID), task)
			if err != nil {
				p.log.Warn("Asset mirror attempt failed",
					"job_id", jc.Job.ID, "video_id", videoID, "role", task.Role,
					"attempt", jc.Job.Attempts, "error", err)
				return nil, err
			}
			return map[string]any{
				"key":     res.Key,
				"url":     res.URL,
				"skipped": res.Skipped,
			}, nil
		},
	}
	return p.engine.Run(jc, []orchestrator.Stage{stage}, map[string]any{
		"video_id": videoID.String(),
		"role":     string(task.Role),
	})
}
