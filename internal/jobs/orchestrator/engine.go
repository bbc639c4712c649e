package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
)

// -------------------- Public API --------------------

// RetryPolicy decides whether a stage failure hands the run back to the
// queue. Without Retryable every failure is terminal.
type RetryPolicy struct {
	Retryable func(err error) bool
}

type Stage struct {
	Name     string
	Timeout  time.Duration
	StartPct int
	EndPct   int
	StartMsg string
	DoneMsg  string
	Retry    RetryPolicy
	// Input is what the stage's checkpoint is keyed on. Defaults to the
	// job payload plus every earlier stage's outputs.
	Input func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error)
	Run   func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error)
}

// ErrAbort fails the run at the current stage regardless of the retry policy.
var ErrAbort = errors.New("abort run")

type Engine struct {
	StateVersion int
}

func NewEngine() *Engine {
	return &Engine{StateVersion: 1}
}

/*
Run executes stages in order against the run in ctx.
	- A stage whose recorded input hash matches the current input is skipped.
	- Each completed stage is checkpointed into job_run.result and appended
	  to the run's event ledger as step_succeeded.
	- A failing stage discards its outputs and either fails the run or, when
	  its RetryPolicy allows, requeues it with backoff.
*/
func (e *Engine) Run(ctx *jobrt.Context, stages []Stage, finalResult map[string]any) error {
	if ctx == nil || ctx.Job == nil {
		return nil
	}
	if len(stages) == 0 {
		ctx.Succeed("done", finalResult)
		return nil
	}
	if err := validateStages(stages); err != nil {
		ctx.Fail("validate", err)
		return nil
	}
	st, _ := LoadState(ctx, e.StateVersion)

	for i := range stages {
		def := stages[i]
		ss := st.EnsureStage(def.Name)

		input, err := stageInput(ctx, st, stages[:i], def)
		if err != nil {
			e.handleStageErr(ctx, st, ss, def, err)
			return nil
		}
		hash := hashInput(def.Name, input)
		if ss.Status == StageSucceeded && ss.InputHash == hash {
			continue
		}

		e.startStage(ctx, st, def, ss, hash)
		outs, runErr := safeRun(def, ctx, st)
		if runErr != nil {
			e.handleStageErr(ctx, st, ss, def, runErr)
			return nil
		}
		e.finishStage(ctx, st, def, ss, outs)
	}
	e.succeed(ctx, st, stages, finalResult)
	return nil
}

// -------------------- tight helpers --------------------

func (e *Engine) startStage(ctx *jobrt.Context, st *OrchestratorState, def Stage, ss *StageState, hash string) {
	setProgress(ctx, st, def.Name, def.StartPct, msgOr(def.StartMsg, "Starting "+def.Name))
	ss.Status = StageRunning
	ss.InputHash = hash
	ss.Outputs = map[string]any{}
	ss.LastError = ""
	ss.FinishedAt = nil
	markStarted(ss)
	_ = SaveState(ctx, st)
}

func (e *Engine) finishStage(ctx *jobrt.Context, st *OrchestratorState, def Stage, ss *StageState, outs map[string]any) {
	mergeOutputs(ss, outs)
	ss.Status = StageSucceeded
	markFinished(ss, "")
	setProgress(ctx, st, def.Name, def.EndPct, msgOr(def.DoneMsg, "Done "+def.Name))
	_ = SaveState(ctx, st)
	ctx.Record(jobstatus.JobEventStepSucceeded, def.Name, map[string]any{
		"step":       def.Name,
		"input_hash": ss.InputHash,
		"outputs":    ss.Outputs,
	})
}

func (e *Engine) succeed(ctx *jobrt.Context, st *OrchestratorState, stages []Stage, finalResult map[string]any) {
	out := map[string]any{}
	for _, sdef := range stages {
		if ss := st.Stages[sdef.Name]; ss != nil && ss.Outputs != nil {
			out[sdef.Name] = ss.Outputs
		}
	}
	final := map[string]any{
		"orchestrator": st,
		"outputs":      out,
	}
	for k, v := range finalResult {
		final[k] = v
	}
	ctx.Succeed("done", final)
}

// -------------------- state persistence --------------------

// LoadState reads the step log from job_run.result. Both the running
// shape (bare state) and the final shape ({"orchestrator": state}) load.
func LoadState(ctx *jobrt.Context, version int) (*OrchestratorState, error) {
	st := &OrchestratorState{Version: version, Stages: map[string]*StageState{}, Meta: map[string]any{}}
	if ctx == nil || ctx.Job == nil {
		st.ensure()
		return st, nil
	}
	raw := ctx.Job.Result
	if len(raw) == 0 || string(raw) == "null" {
		st.ensure()
		return st, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		if v, ok := probe["orchestrator"]; ok {
			_ = json.Unmarshal(v, st)
			st.ensure()
			return st, nil
		}
	}
	if err := json.Unmarshal(raw, st); err != nil {
		st.Meta["state_unmarshal_error"] = err.Error()
	}
	st.ensure()
	return st, nil
}

func SaveState(ctx *jobrt.Context, st *OrchestratorState) error {
	if ctx == nil || ctx.Job == nil || st == nil {
		return nil
	}
	st.ensure()
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := ctx.Update(map[string]any{"result": datatypes.JSON(b)}); err != nil {
		return err
	}
	ctx.Job.Result = datatypes.JSON(b)
	return nil
}

// -------------------- stage error handling --------------------

func (e *Engine) handleStageErr(ctx *jobrt.Context, st *OrchestratorState, ss *StageState, def Stage, err error) {
	ss.Attempts++
	ss.Status = StageFailed
	ss.Outputs = map[string]any{}
	markFinished(ss, errString(err))
	_ = SaveState(ctx, st)
	if shouldRetry(def.Retry, err) {
		ctx.Retry(def.Name, err)
		return
	}
	ctx.Fail(def.Name, err)
}

func shouldRetry(r RetryPolicy, err error) bool {
	if err == nil || errors.Is(err, ErrAbort) || r.Retryable == nil {
		return false
	}
	return r.Retryable(err)
}

// -------------------- input hashing --------------------

func stageInput(ctx *jobrt.Context, st *OrchestratorState, earlier []Stage, def Stage) (map[string]any, error) {
	if def.Input != nil {
		return def.Input(ctx, st)
	}
	payload := map[string]any{}
	for k, v := range ctx.Payload() {
		if k == "trace_id" || k == "request_id" {
			continue
		}
		payload[k] = v
	}
	upstream := map[string]any{}
	for _, prev := range earlier {
		if ss := st.Stages[prev.Name]; ss != nil {
			upstream[prev.Name] = ss.Outputs
		}
	}
	return map[string]any{"payload": payload, "upstream": upstream}, nil
}

// hashInput is stable across runs: encoding/json sorts map keys.
func hashInput(stage string, input map[string]any) string {
	b, err := json.Marshal(map[string]any{"stage": stage, "input": input})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// -------------------- safety + validation --------------------

func validateStages(stages []Stage) error {
	seen := map[string]bool{}
	lastEnd := -1
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Run == nil {
			return fmt.Errorf("stage %q: Run is nil", s.Name)
		}
		if s.StartPct < 0 || s.StartPct > 100 || s.EndPct < 0 || s.EndPct > 100 {
			return fmt.Errorf("stage %q: progress must be 0..100", s.Name)
		}
		if s.EndPct < s.StartPct {
			return fmt.Errorf("stage %q: EndPct must be >= StartPct", s.Name)
		}
		if s.EndPct < lastEnd {
			return fmt.Errorf("stage %q: EndPct must be >= previous stage EndPct", s.Name)
		}
		lastEnd = s.EndPct
	}
	return nil
}

func safeRun(def Stage, ctx *jobrt.Context, st *OrchestratorState) (outs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs, err = nil, fmt.Errorf("stage %q panic: %v", def.Name, r)
		}
	}()
	if def.Timeout <= 0 {
		return def.Run(ctx, st)
	}
	base := ctx.Ctx
	if base == nil {
		base = context.Background()
	}
	tctx, cancel := context.WithTimeout(base, def.Timeout)
	defer cancel()
	scoped := *ctx
	scoped.Ctx = tctx
	outs, err = def.Run(&scoped, st)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("stage %q timed out: %w", def.Name, err)
	}
	return outs, err
}

// -------------------- progress + timestamps --------------------

func setProgress(ctx *jobrt.Context, st *OrchestratorState, stage string, pct int, msg string) {
	if ctx == nil || st == nil {
		return
	}
	if pct < st.LastProgress {
		pct = st.LastProgress
	} else {
		st.LastProgress = pct
	}
	ctx.Progress(stage, pct, msg)
}

func markStarted(ss *StageState) {
	now := time.Now().UTC()
	ss.StartedAt = &now
}

func markFinished(ss *StageState, lastErr string) {
	now := time.Now().UTC()
	ss.FinishedAt = &now
	if strings.TrimSpace(lastErr) != "" {
		ss.LastError = lastErr
	}
}

// mergeOutputs stores outputs in their JSON form so a resumed run hashes
// them exactly like the run that produced them.
func mergeOutputs(ss *StageState, outs map[string]any) {
	if outs == nil {
		return
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	if b, err := json.Marshal(outs); err == nil {
		var norm map[string]any
		if json.Unmarshal(b, &norm) == nil {
			outs = norm
		}
	}
	for k, v := range outs {
		ss.Outputs[k] = v
	}
}

func msgOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
