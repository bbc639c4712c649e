package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
)

type harness struct {
	t      *testing.T
	repo   repos.JobRunRepo
	events repos.JobRunEventRepo
	jc     *jobrt.Context
}

func newHarness(t *testing.T, payload string, maxAttempts int) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{t: t, repo: repos.NewJobRunRepo(db, log), events: repos.NewJobRunEventRepo(db, log)}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     "test_job",
		Status:      jobstatus.StatusRunning,
		Stage:       "running",
		Attempts:    1,
		MaxAttempts: maxAttempts,
		Payload:     datatypes.JSON([]byte(payload)),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := h.repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	h.jc = jobrt.NewContext(context.Background(), db, job, h.repo, h.events, nil)
	return h
}

func (h *harness) stored() *types.JobRun {
	h.t.Helper()
	job, err := h.repo.GetByID(dbctx.Context{Ctx: context.Background()}, h.jc.Job.ID)
	if err != nil || job == nil {
		h.t.Fatalf("GetByID: job=%v err=%v", job, err)
	}
	return job
}

func (h *harness) eventKinds() []string {
	h.t.Helper()
	evs, err := h.events.ListByJob(dbctx.Context{Ctx: context.Background()}, h.jc.Job.ID)
	if err != nil {
		h.t.Fatalf("ListByJob: %v", err)
	}
	out := []string{}
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

// rerun puts the run back in the running state with the same step log.
func (h *harness) rerun() {
	h.jc.Job.Status = jobstatus.StatusRunning
	if err := h.repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, h.jc.Job.ID, map[string]interface{}{"status": jobstatus.StatusRunning}); err != nil {
		h.t.Fatalf("reset status: %v", err)
	}
}

func countingStages(calls map[string]int) []Stage {
	return []Stage{
		{
			Name: "first", StartPct: 0, EndPct: 50,
			Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				calls["first"]++
				return map[string]any{"n": 7}, nil
			},
		},
		{
			Name: "second", StartPct: 50, EndPct: 100,
			Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				calls["second"]++
				return map[string]any{"doubled": st.String("first", "n") + st.String("first", "n")}, nil
			},
		},
	}
}

func TestEngineRunsStagesAndRecordsSteps(t *testing.T) {
	h := newHarness(t, `{"video_id":"v1"}`, 1)
	calls := map[string]int{}

	if err := NewEngine().Run(h.jc, countingStages(calls), map[string]any{"video_id": "v1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job := h.stored()
	if job.Status != jobstatus.StatusSucceeded || job.Progress != 100 {
		t.Fatalf("job: status=%q progress=%d", job.Status, job.Progress)
	}
	if !strings.Contains(string(job.Result), `"doubled":"77"`) || !strings.Contains(string(job.Result), `"video_id":"v1"`) {
		t.Fatalf("result: %s", job.Result)
	}
	counts := map[string]int{}
	for _, k := range h.eventKinds() {
		counts[k]++
	}
	if counts[string(jobstatus.JobEventStepSucceeded)] != 2 || counts[string(jobstatus.JobEventSucceeded)] != 1 {
		t.Fatalf("events: %v", counts)
	}
}

func TestEngineSkipsCheckpointedStages(t *testing.T) {
	h := newHarness(t, `{"video_id":"v1"}`, 1)
	calls := map[string]int{}
	engine := NewEngine()

	if err := engine.Run(h.jc, countingStages(calls), nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	h.rerun()
	if err := engine.Run(h.jc, countingStages(calls), nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls["first"] != 1 || calls["second"] != 1 {
		t.Fatalf("same input re-ran stages: %v", calls)
	}
	if h.stored().Status != jobstatus.StatusSucceeded {
		t.Fatalf("rerun did not succeed")
	}
}

func TestEngineRerunsOnChangedInput(t *testing.T) {
	h := newHarness(t, `{"video_id":"v1"}`, 1)
	calls := map[string]int{}
	engine := NewEngine()
	if err := engine.Run(h.jc, countingStages(calls), nil); err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.rerun()
	h.jc.Job.Payload = datatypes.JSON([]byte(`{"video_id":"v2"}`))
	jc := jobrt.NewContext(context.Background(), h.jc.DB, h.jc.Job, h.repo, h.events, nil)
	if err := engine.Run(jc, countingStages(calls), nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls["first"] != 2 {
		t.Fatalf("changed payload should re-run first stage: %v", calls)
	}
}

func TestEngineFailureDiscardsOutputs(t *testing.T) {
	h := newHarness(t, `{}`, 1)
	stages := []Stage{{
		Name: "flaky", StartPct: 0, EndPct: 100,
		Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			return map[string]any{"partial": true}, errors.New("boom")
		},
	}}
	if err := NewEngine().Run(h.jc, stages, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job := h.stored()
	if job.Status != jobstatus.StatusFailed || job.Stage != "flaky" || job.Error != "boom" {
		t.Fatalf("job: status=%q stage=%q error=%q", job.Status, job.Stage, job.Error)
	}
	st, _ := LoadState(h.jc, 1)
	ss := st.Stages["flaky"]
	if ss == nil || ss.Status != StageFailed || len(ss.Outputs) != 0 || ss.LastError != "boom" {
		t.Fatalf("stage state: %+v", ss)
	}
}

func TestEngineRetryableStageRequeues(t *testing.T) {
	h := newHarness(t, `{}`, 3)
	stages := []Stage{{
		Name: "fetch", StartPct: 0, EndPct: 100,
		Retry: RetryPolicy{Retryable: func(error) bool { return true }},
		Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			return nil, errors.New("503")
		},
	}}
	if err := NewEngine().Run(h.jc, stages, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job := h.stored()
	if job.Status != jobstatus.StatusQueued || job.NextRunAt == nil {
		t.Fatalf("job: status=%q next_run_at=%v", job.Status, job.NextRunAt)
	}
}

func TestEngineAbortIgnoresRetryPolicy(t *testing.T) {
	h := newHarness(t, `{}`, 3)
	stages := []Stage{{
		Name: "fetch", StartPct: 0, EndPct: 100,
		Retry: RetryPolicy{Retryable: func(error) bool { return true }},
		Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			return nil, fmt.Errorf("gone: %w", ErrAbort)
		},
	}}
	_ = NewEngine().Run(h.jc, stages, nil)
	if got := h.stored().Status; got != jobstatus.StatusFailed {
		t.Fatalf("status: got=%q want=%q", got, jobstatus.StatusFailed)
	}
}

func TestEngineStageTimeout(t *testing.T) {
	h := newHarness(t, `{}`, 1)
	stages := []Stage{{
		Name: "slow", StartPct: 0, EndPct: 100, Timeout: 20 * time.Millisecond,
		Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			<-jc.Ctx.Done()
			return nil, jc.Ctx.Err()
		},
	}}
	_ = NewEngine().Run(h.jc, stages, nil)
	job := h.stored()
	if job.Status != jobstatus.StatusFailed || !strings.Contains(job.Error, "timed out") {
		t.Fatalf("job: status=%q error=%q", job.Status, job.Error)
	}
}

func TestEnginePanicFailsRun(t *testing.T) {
	h := newHarness(t, `{}`, 1)
	stages := []Stage{{
		Name: "explode", StartPct: 0, EndPct: 100,
		Run: func(jc *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			panic("nil map")
		},
	}}
	_ = NewEngine().Run(h.jc, stages, nil)
	if job := h.stored(); job.Status != jobstatus.StatusFailed || !strings.Contains(job.Error, "panic") {
		t.Fatalf("job: status=%q error=%q", job.Status, job.Error)
	}
}

func TestValidateStages(t *testing.T) {
	noop := func(*jobrt.Context, *OrchestratorState) (map[string]any, error) { return nil, nil }
	cases := []struct {
		name   string
		stages []Stage
		ok     bool
	}{
		{"valid", []Stage{{Name: "a", EndPct: 50, Run: noop}, {Name: "b", StartPct: 50, EndPct: 100, Run: noop}}, true},
		{"duplicate", []Stage{{Name: "a", Run: noop}, {Name: "a", Run: noop}}, false},
		{"missing run", []Stage{{Name: "a"}}, false},
		{"unnamed", []Stage{{Run: noop}}, false},
		{"progress backwards", []Stage{{Name: "a", EndPct: 60, Run: noop}, {Name: "b", EndPct: 40, Run: noop}}, false},
		{"out of range", []Stage{{Name: "a", EndPct: 120, Run: noop}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateStages(tc.stages)
			if (err == nil) != tc.ok {
				t.Fatalf("got=%v want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestHashInputIsStable(t *testing.T) {
	a := hashInput("s", map[string]any{"x": 1, "y": map[string]any{"b": 2, "a": 1}})
	b := hashInput("s", map[string]any{"y": map[string]any{"a": 1, "b": 2}, "x": 1})
	if a == "" || a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if a == hashInput("other", map[string]any{"x": 1, "y": map[string]any{"b": 2, "a": 1}}) {
		t.Fatalf("stage name should change the hash")
	}
}
