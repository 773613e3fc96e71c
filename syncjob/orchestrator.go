// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package syncjob

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/metrics"
	"github.com/poiesic/mailgraph/storage"
)

// Orchestrator admits sync jobs and dispatches them onto a worker pool.
// At most one job per tenant is active at a time; admission is enforced by
// the job repository, so it holds across processes sharing a store.
type Orchestrator struct {
	store  storage.Store
	runner *Runner
	pool   *ants.Pool
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator) error

// WithPoolSize sets the worker pool size for concurrent jobs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) OrchestratorOption {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "sync-orchestrator")
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the given store and runner.
func NewOrchestrator(store storage.Store, runner *Runner, opts ...OrchestratorOption) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:   store,
		runner:  runner,
		pool:    pool,
		logger:  slog.Default().With("component", "sync-orchestrator"),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}
	return o, nil
}

// Enqueue validates and admits a new sync job for the tenant, then starts
// it in the background. Returns storage.ErrActiveJobExists when the tenant
// already has a queued or processing job.
func (o *Orchestrator) Enqueue(ctx context.Context, tenantId string, days int, accountId string) (*core.SyncJob, error) {
	job := &core.SyncJob{
		Id:         uuid.NewString(),
		TenantId:   tenantId,
		AccountId:  accountId,
		Days:       days,
		Status:     core.JobQueued,
		TaskHandle: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := core.ValidateJobRequest(job); err != nil {
		return nil, err
	}
	if err := o.store.Jobs().CreateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrActiveJobExists) {
			metrics.RecordJobRejected()
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[job.Id] = cancel
	o.mu.Unlock()

	submitErr := o.pool.Submit(func() {
		defer o.forget(job.Id)
		if err := o.runner.Run(runCtx, job); err != nil {
			o.logger.Warn("job ended with error",
				"job_id", job.Id,
				"tenant_id", job.TenantId,
				"status", job.Status,
				"error", err)
		}
	})
	if submitErr != nil {
		o.forget(job.Id)
		job.Status = core.JobFailed
		job.ErrorMessage = core.TruncateError(submitErr.Error())
		job.CompletedAt = time.Now().UTC()
		if err := o.store.Jobs().UpdateJob(ctx, job); err != nil {
			o.logger.Error("failed to mark unschedulable job", "job_id", job.Id, "error", err)
		}
		return nil, submitErr
	}

	o.logger.Info("job enqueued",
		"job_id", job.Id,
		"tenant_id", tenantId,
		"days", days)
	return job, nil
}

// Cancel stops an active job. The running worker observes the cancelled
// context; the stored status flips to cancelled either here or in the
// runner's terminal write, whichever lands first.
func (o *Orchestrator) Cancel(ctx context.Context, jobId string) error {
	job, err := o.store.Jobs().GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobNotActive
	}

	o.mu.Lock()
	cancel, running := o.cancels[jobId]
	o.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	// No worker in this process; the job is stale (crashed worker or
	// another process). Mark it cancelled directly.
	job.Status = core.JobCancelled
	job.ErrorMessage = "cancelled by user"
	job.CompletedAt = time.Now().UTC()
	if err := o.store.Jobs().UpdateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			return ErrJobNotActive
		}
		return err
	}
	metrics.RecordJobCancelled()
	return nil
}

// Status retrieves a job by id.
func (o *Orchestrator) Status(ctx context.Context, jobId string) (*core.SyncJob, error) {
	return o.store.Jobs().GetJob(ctx, jobId)
}

// ActiveJob returns the tenant's queued or processing job.
func (o *Orchestrator) ActiveJob(ctx context.Context, tenantId string) (*core.SyncJob, error) {
	return o.store.Jobs().GetActiveJob(ctx, tenantId)
}

// List returns the tenant's jobs, most recent first.
func (o *Orchestrator) List(ctx context.Context, tenantId string, limit int) ([]*core.SyncJob, error) {
	return o.store.Jobs().ListJobs(ctx, tenantId, limit)
}

// Release cancels all running jobs and releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	o.mu.Lock()
	for id, cancel := range o.cancels {
		cancel()
		delete(o.cancels, id)
	}
	o.mu.Unlock()

	if o.pool != nil {
		o.pool.Release()
	}
}

func (o *Orchestrator) forget(jobId string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[jobId]; ok {
		cancel()
		delete(o.cancels, jobId)
	}
	o.mu.Unlock()
}
