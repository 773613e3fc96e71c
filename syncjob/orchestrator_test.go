package syncjob

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTerminal(t *testing.T, jobs storage.JobRepository, id string) *core.SyncJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetJob(context.Background(), id)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
	return nil
}

func newOrchestratorFixture(t *testing.T, opts ...RunnerOption) (*runnerFixture, *Orchestrator) {
	t.Helper()
	f := newRunnerFixture(t, opts...)
	orch, err := NewOrchestrator(f.store, f.runner, WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(orch.Release)
	return f, orch
}

func TestOrchestratorEnqueueRunsToCompletion(t *testing.T) {
	f, orch := newOrchestratorFixture(t)
	now := time.Now().UTC()
	f.provider.AddMessages(testMessage("msg-1", now.Add(-2*time.Hour)))

	job, err := orch.Enqueue(context.Background(), testTenant, 30, "acc-1")
	require.NoError(t, err)
	require.NotEmpty(t, job.Id)

	final := waitTerminal(t, f.store.Jobs(), job.Id)
	assert.Equal(t, core.JobCompleted, final.Status)
	assert.Equal(t, 1, final.EmailsProcessed)
}

func TestOrchestratorRejectsSecondJob(t *testing.T) {
	f, orch := newOrchestratorFixture(t)
	now := time.Now().UTC()
	f.provider.AddMessages(testMessage("msg-1", now.Add(-2*time.Hour)))

	release := make(chan struct{})
	f.engine.SubmitFunc = func(ctx context.Context, episode *core.Episode) (*extract.Result, error) {
		select {
		case <-release:
			return &extract.Result{EpisodeId: "ep-1"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, err := orch.Enqueue(context.Background(), testTenant, 30, "acc-1")
	require.NoError(t, err)

	_, err = orch.Enqueue(context.Background(), testTenant, 7, "acc-1")
	assert.ErrorIs(t, err, storage.ErrActiveJobExists)

	// Another tenant is admitted independently
	other, err := orch.Enqueue(context.Background(), "tenant-b", 7, "acc-2")
	require.NoError(t, err)

	close(release)
	waitTerminal(t, f.store.Jobs(), job.Id)
	waitTerminal(t, f.store.Jobs(), other.Id)
}

func TestOrchestratorCancel(t *testing.T) {
	f, orch := newOrchestratorFixture(t)
	now := time.Now().UTC()
	f.provider.AddMessages(testMessage("msg-1", now.Add(-2*time.Hour)))

	started := make(chan struct{})
	f.engine.SubmitFunc = func(ctx context.Context, episode *core.Episode) (*extract.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	job, err := orch.Enqueue(context.Background(), testTenant, 30, "acc-1")
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	require.NoError(t, orch.Cancel(context.Background(), job.Id))

	final := waitTerminal(t, f.store.Jobs(), job.Id)
	assert.Equal(t, core.JobCancelled, final.Status)
	assert.Equal(t, "cancelled by user", final.ErrorMessage)
}

func TestOrchestratorCancelTerminalJob(t *testing.T) {
	f, orch := newOrchestratorFixture(t)
	now := time.Now().UTC()
	f.provider.AddMessages(testMessage("msg-1", now.Add(-2*time.Hour)))

	job, err := orch.Enqueue(context.Background(), testTenant, 30, "acc-1")
	require.NoError(t, err)
	waitTerminal(t, f.store.Jobs(), job.Id)

	err = orch.Cancel(context.Background(), job.Id)
	assert.ErrorIs(t, err, ErrJobNotActive)
}

func TestOrchestratorCancelMissingJob(t *testing.T) {
	_, orch := newOrchestratorFixture(t)
	err := orch.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrchestratorValidatesRequest(t *testing.T) {
	_, orch := newOrchestratorFixture(t)

	_, err := orch.Enqueue(context.Background(), "", 30, "acc-1")
	assert.Error(t, err)

	_, err = orch.Enqueue(context.Background(), testTenant, 0, "acc-1")
	assert.Error(t, err)

	_, err = orch.Enqueue(context.Background(), testTenant, 400, "acc-1")
	assert.Error(t, err)
}

func TestOrchestratorStatusAndList(t *testing.T) {
	f, orch := newOrchestratorFixture(t)
	now := time.Now().UTC()
	f.provider.AddMessages(testMessage("msg-1", now.Add(-2*time.Hour)))

	job, err := orch.Enqueue(context.Background(), testTenant, 30, "acc-1")
	require.NoError(t, err)
	waitTerminal(t, f.store.Jobs(), job.Id)

	got, err := orch.Status(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, job.Id, got.Id)

	listed, err := orch.List(context.Background(), testTenant, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, job.Id, listed[0].Id)
}
