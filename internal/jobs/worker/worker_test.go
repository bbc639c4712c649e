package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/jobtest"
	"github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/services"
)

type stubHandler struct {
	jobType string
	calls   int
	run     func(jc *runtime.Context) error
}

func (h *stubHandler) Type() string { return h.jobType }

func (h *stubHandler) Run(jc *runtime.Context) error {
	h.calls++
	if h.run == nil {
		return nil
	}
	return h.run(jc)
}

func newWorker(t *testing.T, env *jobtest.Env, handlers ...runtime.Handler) *Worker {
	t.Helper()
	log := testutil.Logger(t)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	exec := &Executor{DB: env.DB, Log: log, Repo: env.Jobs, Events: env.Events, Registry: reg}
	return NewWorker(log, exec)
}

func enqueue(t *testing.T, env *jobtest.Env, jobType string) uuid.UUID {
	t.Helper()
	log := testutil.Logger(t)
	js := services.NewJobService(env.DB, log, env.Jobs, env.Events, nil, nil, "")
	job, err := js.Enqueue(dbctx.Context{Ctx: context.Background()}, uuid.New(), jobType, "", nil, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job.ID
}

func TestRunOnceExecutesQueuedJob(t *testing.T) {
	env := jobtest.NewEnv(t)
	h := &stubHandler{jobType: "echo"}
	w := newWorker(t, env, h)
	id := enqueue(t, env, "echo")

	ran, err := w.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	if h.calls != 1 {
		t.Fatalf("handler calls: got=%d want=1", h.calls)
	}
	job := env.Stored(t, id)
	if job.Status != jobstatus.StatusSucceeded || job.Attempts != 1 {
		t.Fatalf("job: status=%q attempts=%d", job.Status, job.Attempts)
	}

	ran, err = w.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("empty queue: ran=%v err=%v", ran, err)
	}
}

func TestRunOnceFailures(t *testing.T) {
	cases := []struct {
		name      string
		jobType   string
		handler   *stubHandler
		wantStage string
	}{
		{"no handler", "unknown", &stubHandler{jobType: "echo"}, "dispatch"},
		{"handler error", "echo", &stubHandler{jobType: "echo", run: func(*runtime.Context) error { return errors.New("bad input") }}, "run"},
		{"handler panic", "echo", &stubHandler{jobType: "echo", run: func(*runtime.Context) error { panic("boom") }}, "panic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := jobtest.NewEnv(t)
			w := newWorker(t, env, tc.handler)
			id := enqueue(t, env, tc.jobType)

			if ran, err := w.RunOnce(context.Background()); err != nil || !ran {
				t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
			}
			job := env.Stored(t, id)
			if job.Status != jobstatus.StatusFailed || job.Stage != tc.wantStage {
				t.Fatalf("job: status=%q stage=%q want stage=%q", job.Status, job.Stage, tc.wantStage)
			}
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := runtime.NewRegistry()
	if err := reg.Register(&stubHandler{jobType: "echo"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&stubHandler{jobType: "echo"}); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if err := reg.Register(&stubHandler{}); err == nil {
		t.Fatalf("empty type accepted")
	}
}
