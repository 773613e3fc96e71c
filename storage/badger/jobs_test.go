package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

func TestJobCreateAndGet(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()

	job := &core.SyncJob{
		Id:       "job-1",
		TenantId: "tenant-a",
		Days:     30,
		Status:   core.JobQueued,
	}
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("Expected CreatedAt to be set")
	}

	got, err := jobs.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.TenantId != "tenant-a" || got.Days != 30 {
		t.Fatalf("Unexpected job: %+v", got)
	}
	if got.Status != core.JobQueued {
		t.Fatalf("Expected queued status, got %s", got.Status)
	}
}

func TestJobAdmission(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()

	first := &core.SyncJob{Id: "job-1", TenantId: "tenant-a", Days: 30, Status: core.JobQueued}
	if err := jobs.CreateJob(ctx, first); err != nil {
		t.Fatalf("Failed to create first job: %v", err)
	}

	second := &core.SyncJob{Id: "job-2", TenantId: "tenant-a", Days: 7, Status: core.JobQueued}
	err = jobs.CreateJob(ctx, second)
	if !errors.Is(err, storage.ErrActiveJobExists) {
		t.Fatalf("Expected ErrActiveJobExists, got %v", err)
	}

	// Another tenant is unaffected
	other := &core.SyncJob{Id: "job-3", TenantId: "tenant-b", Days: 30, Status: core.JobQueued}
	if err := jobs.CreateJob(ctx, other); err != nil {
		t.Fatalf("Failed to create job for second tenant: %v", err)
	}

	// Completing the first job frees the slot
	first.Status = core.JobCompleted
	first.CompletedAt = time.Now().UTC()
	if err := jobs.UpdateJob(ctx, first); err != nil {
		t.Fatalf("Failed to complete job: %v", err)
	}
	if err := jobs.CreateJob(ctx, second); err != nil {
		t.Fatalf("Expected admission after completion, got %v", err)
	}
}

func TestJobGetActive(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()

	_, err = jobs.GetActiveJob(ctx, "tenant-a")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	job := &core.SyncJob{Id: "job-1", TenantId: "tenant-a", Days: 30, Status: core.JobQueued}
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	active, err := jobs.GetActiveJob(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Failed to get active job: %v", err)
	}
	if active.Id != "job-1" {
		t.Fatalf("Expected job-1, got %s", active.Id)
	}

	job.Status = core.JobCancelled
	if err := jobs.UpdateJob(ctx, job); err != nil {
		t.Fatalf("Failed to cancel job: %v", err)
	}

	_, err = jobs.GetActiveJob(ctx, "tenant-a")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after cancel, got %v", err)
	}
}

func TestJobTerminalTransition(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()

	job := &core.SyncJob{Id: "job-1", TenantId: "tenant-a", Days: 30, Status: core.JobQueued}
	if err := jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	job.Status = core.JobFailed
	job.ErrorMessage = "provider unavailable"
	if err := jobs.UpdateJob(ctx, job); err != nil {
		t.Fatalf("Failed to fail job: %v", err)
	}

	job.Status = core.JobProcessing
	err = jobs.UpdateJob(ctx, job)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	// Updating fields without a status change is still allowed
	job.Status = core.JobFailed
	job.EmailsProcessed = 12
	if err := jobs.UpdateJob(ctx, job); err != nil {
		t.Fatalf("Failed to update terminal job fields: %v", err)
	}
}

func TestJobUpdateMissing(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	job := &core.SyncJob{Id: "nope", TenantId: "tenant-a", Status: core.JobProcessing}
	err = store.Jobs().UpdateJob(context.Background(), job)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobListMostRecentFirst(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()

	base := time.Now().UTC().Add(-1 * time.Hour)
	for i, id := range []string{"job-1", "job-2", "job-3"} {
		job := &core.SyncJob{
			Id:        id,
			TenantId:  "tenant-a",
			Days:      30,
			Status:    core.JobQueued,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := jobs.CreateJob(ctx, job); err != nil {
			t.Fatalf("Failed to create %s: %v", id, err)
		}
		job.Status = core.JobCompleted
		if err := jobs.UpdateJob(ctx, job); err != nil {
			t.Fatalf("Failed to complete %s: %v", id, err)
		}
	}

	listed, err := jobs.ListJobs(ctx, "tenant-a", 2)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(listed))
	}
	if listed[0].Id != "job-3" || listed[1].Id != "job-2" {
		t.Fatalf("Expected most recent first, got %s, %s", listed[0].Id, listed[1].Id)
	}

	empty, err := jobs.ListJobs(ctx, "tenant-b", 10)
	if err != nil {
		t.Fatalf("Failed to list jobs for empty tenant: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("Expected no jobs, got %d", len(empty))
	}
}
