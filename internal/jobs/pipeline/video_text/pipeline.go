package video_text

import (
	"time"

	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	jobrt "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
)

const (
	StageGetVideo      = "get-video"
	StageGetTranscript = "get-transcript"
	StageGenerateText  = "generate-text"
	StageUpdateVideo   = "update-video"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	ref, err := steps.ParseVideoRef(jc.PayloadString("video_id"), jc.PayloadString("user_id"), jc.Job.OwnerUserID)
	if err != nil {
		jc.Fail("validate", err)
		return nil
	}
	p.log.Debug("Enrichment run", "job_id", jc.Job.ID, "video_id", ref.VideoID)
	return p.engine.Run(jc, p.stages(ref), map[string]any{
		"video_id": ref.VideoID.String(),
		"field":    string(p.kind),
	})
}

func (p *Pipeline) stages(ref steps.VideoRef) []orchestrator.Stage {
	return []orchestrator.Stage{
		{
			Name:     StageGetVideo,
			StartPct: 0,
			EndPct:   10,
			StartMsg: "Loading video",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				snap, err := steps.GetVideo(jc.Ctx, p.deps, ref)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"video_id":    snap.VideoID.String(),
					"playback_id": snap.PlaybackID,
					"track_id":    snap.TrackID,
				}, nil
			},
		},
		{
			Name:     StageGetTranscript,
			Timeout:  time.Minute,
			StartPct: 10,
			EndPct:   35,
			StartMsg: "Fetching transcript",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				text, err := steps.GetTranscript(jc.Ctx, p.deps,
					st.String(StageGetVideo, "playback_id"),
					st.String(StageGetVideo, "track_id"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"transcript": text}, nil
			},
		},
		{
			Name:     StageGenerateText,
			Timeout:  2 * time.Minute,
			StartPct: 35,
			EndPct:   85,
			StartMsg: "Generating " + string(p.kind),
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				text, err := steps.GenerateText(jc.Ctx, p.deps, p.kind, st.String(StageGetTranscript, "transcript"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"text": text}, nil
			},
		},
		{
			Name:     StageUpdateVideo,
			StartPct: 85,
			EndPct:   100,
			StartMsg: "Saving " + string(p.kind),
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				v, err := steps.UpdateVideoText(jc.Ctx, p.deps, ref, p.kind, st.String(StageGenerateText, "text"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"version": v.Version}, nil
			},
		},
	}
}
