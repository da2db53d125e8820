package job

import (
	"context"
	"sort"
	"sync"
	"testing"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/apperr"

	"github.com/google/uuid"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.SyncJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.SyncJob)}
}

func (f *fakeJobRepo) Create(ctx context.Context, job *domain.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID.String()] = &copied
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, out.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) Update(ctx context.Context, job *domain.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID.String()] = &copied
	return nil
}

func (f *fakeJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []*domain.SyncJob
	for _, j := range f.jobs {
		if j.UserID.String() == userID {
			copied := *j
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.After(jobs[k].StartedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	tracker := NewTracker(repo, nil)
	userID := uuid.New()

	job, err := tracker.Start(ctx, userID, domain.RetailerMyntra)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if job.Status != domain.SyncStatusRunning {
		t.Fatalf("status = %q, want running", job.Status)
	}

	tracker.Update(ctx, job.ID.String(), Delta{EmailsFound: 5})
	tracker.Update(ctx, job.ID.String(), Delta{EmailsProcessed: 4, FailedEmails: 1, ErrorMessage: "email msg-3 failed"})

	if err := tracker.Complete(ctx, job.ID.String(), domain.SyncStatusCompleted, ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := tracker.Get(ctx, job.ID.String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.EmailsFound != 5 || got.EmailsProcessed != 4 || got.FailedEmails != 1 {
		t.Errorf("counters = found:%d processed:%d failed:%d", got.EmailsFound, got.EmailsProcessed, got.FailedEmails)
	}
	if got.ErrorMessage != "email msg-3 failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestTerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	tracker := NewTracker(repo, nil)

	job, err := tracker.Start(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	jobID := job.ID.String()

	if err := tracker.Complete(ctx, jobID, domain.SyncStatusCompleted, ""); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}

	err = tracker.Complete(ctx, jobID, domain.SyncStatusFailed, "late failure")
	if !apperr.IsCode(err, apperr.CodeJobAlreadyTerminal) {
		t.Fatalf("second Complete error = %v, want JOB_ALREADY_TERMINAL", err)
	}

	// Late counter updates are dropped silently.
	tracker.Update(ctx, jobID, Delta{EmailsProcessed: 99})

	got, err := tracker.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, terminal outcome must not change", got.Status)
	}
	if got.EmailsProcessed != 0 {
		t.Errorf("processed = %d, late update should be dropped", got.EmailsProcessed)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want untouched", got.ErrorMessage)
	}
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	tracker := NewTracker(newFakeJobRepo(), nil)
	err := tracker.Complete(context.Background(), uuid.NewString(), domain.SyncStatusRunning, "")
	if !apperr.IsCode(err, apperr.CodeBadRequest) {
		t.Fatalf("error = %v, want BAD_REQUEST", err)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	tracker := NewTracker(repo, nil)
	userID := uuid.New()

	for i := 0; i < 60; i++ {
		if _, err := tracker.Start(ctx, userID, ""); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	jobs, err := tracker.History(ctx, userID.String(), 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(jobs) != 50 {
		t.Errorf("history size = %d, want capped at 50", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].StartedAt.After(jobs[i-1].StartedAt) {
			t.Fatal("history not ordered newest first")
		}
	}

	t.Run("oversized limit clamps", func(t *testing.T) {
		jobs, err := tracker.History(ctx, userID.String(), 500)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(jobs) != 50 {
			t.Errorf("history size = %d, want 50", len(jobs))
		}
	})
}
