package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/vidstream-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
)

func newJob(owner uuid.UUID, status string, created time.Time) *domain.JobRun {
	return &domain.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     "test_job",
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobRunRepoClaim(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()

	deferred := newJob(owner, domain.StatusQueued, now.Add(-4*time.Hour))
	deferred.NextRunAt = testutil.PtrTime(now.Add(time.Hour))
	queued := newJob(owner, domain.StatusQueued, now.Add(-3*time.Hour))
	dead := newJob(owner, domain.StatusDead, now.Add(-5*time.Hour))
	stale := newJob(owner, domain.StatusRunning, now.Add(-1*time.Hour))
	stale.HeartbeatAt = testutil.PtrTime(now.Add(-10 * time.Hour))

	if _, err := repo.Create(dbc, []*domain.JobRun{deferred, queued, dead, stale}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first claim: job=%v err=%v", first, err)
	}
	if first.ID != queued.ID {
		t.Fatalf("first claim: got=%s want queued=%s", first.ID, queued.ID)
	}
	if first.Attempts != 1 || first.Status != domain.StatusRunning {
		t.Fatalf("first claim: attempts=%d status=%q", first.Attempts, first.Status)
	}

	second, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil || second == nil || second.ID != stale.ID {
		t.Fatalf("second claim: job=%v err=%v want stale=%s", second, err, stale.ID)
	}

	third, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if third != nil {
		t.Fatalf("deferred and dead jobs must not be claimed, got=%s", third.ID)
	}
}

func TestJobRunRepoUpdateUnlessStatus(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	job := newJob(uuid.New(), domain.StatusCanceled, time.Now().UTC())
	if _, err := repo.Create(dbc, []*domain.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{domain.StatusCanceled}, map[string]interface{}{
		"status": domain.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("canceled job must not be overwritten")
	}
	got, err := repo.GetByID(dbc, job.ID)
	if err != nil || got == nil || got.Status != domain.StatusCanceled {
		t.Fatalf("GetByID: job=%v err=%v", got, err)
	}
}

func TestJobRunEventRepoOrdersByCreation(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunEventRepo(db, testutil.Logger(t))

	jobID := uuid.New()
	base := time.Now().UTC()
	events := []*domain.JobRunEvent{
		{JobID: jobID, OwnerUserID: uuid.New(), JobType: "video_title", Kind: "step_succeeded", Status: "running", Stage: "get-transcript", CreatedAt: base.Add(time.Second)},
		{JobID: jobID, OwnerUserID: uuid.New(), JobType: "video_title", Kind: "step_succeeded", Status: "running", Stage: "get-video", CreatedAt: base},
	}
	if err := repo.Create(dbc, events); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.ListByJob(dbc, jobID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(got) != 2 || got[0].Stage != "get-video" || got[1].Stage != "get-transcript" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
