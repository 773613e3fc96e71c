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


package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// JobRepository implements storage.JobRepository for PostgreSQL.
type JobRepository struct {
	store *Store
}

var _ storage.JobRepository = (*JobRepository)(nil)

// Close is a no-op. The connection pool is owned by the store.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the store.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.withTransaction(ctx, fn)
}

// CreateJob stores a new job. Admission is a conditional insert: the row is
// written only if the tenant has no active job, so concurrent creates for
// one tenant cannot both succeed.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.SyncJob) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = core.JobQueued
	}

	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO `+syncJobTable+` (id, tenant_id, status, payload, created_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE NOT EXISTS (
			SELECT 1 FROM `+syncJobTable+`
			WHERE tenant_id = $2 AND status IN ('queued', 'processing')
		 )`,
		job.Id, job.TenantId, string(job.Status),
		storage.MarshalSyncJob(job), job.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrActiveJobExists
	}
	return nil
}

// UpdateJob persists the job's current state.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.SyncJob) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM `+syncJobTable+` WHERE id = $1 FOR UPDATE`,
		job.Id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	if core.JobStatus(current).Terminal() && job.Status != core.JobStatus(current) {
		return storage.ErrInvalidTransition
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE `+syncJobTable+` SET status = $2, payload = $3 WHERE id = $1`,
		job.Id, string(job.Status), storage.MarshalSyncJob(job))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetJob retrieves a job by id.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.SyncJob, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT payload FROM `+syncJobTable+` WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalSyncJob(payload)
}

// GetActiveJob returns the tenant's queued or processing job.
func (r *JobRepository) GetActiveJob(ctx context.Context, tenantId string) (*core.SyncJob, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT payload FROM `+syncJobTable+`
		 WHERE tenant_id = $1 AND status IN ('queued', 'processing')
		 ORDER BY created_at DESC LIMIT 1`, tenantId).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalSyncJob(payload)
}

// ListJobs returns the tenant's jobs, most recent first, up to limit.
func (r *JobRepository) ListJobs(ctx context.Context, tenantId string, limit int) ([]*core.SyncJob, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT payload FROM `+syncJobTable+`
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC LIMIT $2`, tenantId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.SyncJob
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		job, err := storage.UnmarshalSyncJob(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, job)
	}
	return results, rows.Err()
}
