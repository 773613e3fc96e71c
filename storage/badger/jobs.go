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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Admission is enforced with a per-tenant active job marker written in the
// same transaction as the job record. Concurrent creates for one tenant
// conflict on the marker key and exactly one commits.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{
		backend: backend,
	}
}

// Close is a no-op. The backend is owned by the store.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// CreateJob stores a new job.
// Returns storage.ErrActiveJobExists if the tenant already has an active job.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.SyncJob) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		activeKey := makeJobActiveKey(job.TenantId)
		if _, err := tx.Get(activeKey); err == nil {
			return storage.ErrActiveJobExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if job.CreatedAt.IsZero() {
			job.CreatedAt = time.Now().UTC()
		}
		if job.Status == "" {
			job.Status = core.JobQueued
		}

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalSyncJob(job)); err != nil {
			return err
		}
		indexKey := makeJobTenantKey(job.TenantId, job.CreatedAt, job.Id)
		if err := tx.Set(indexKey, []byte(job.Id)); err != nil {
			return err
		}
		if err := tx.Set(activeKey, []byte(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrActiveJobExists
	}
	return err
}

// UpdateJob persists the job's current state.
// A job already in a terminal status cannot change status again; the active
// marker is cleared when the job reaches a terminal status.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.SyncJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := r.readJob(tx, makeJobKey(job.Id))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if old.Status.Terminal() && job.Status != old.Status {
			return storage.ErrInvalidTransition
		}

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalSyncJob(job)); err != nil {
			return err
		}

		if job.Status.Terminal() && old.Status.Active() {
			activeKey := makeJobActiveKey(job.TenantId)
			item, err := tx.Get(activeKey)
			if err == nil {
				var activeId string
				if err := item.Value(func(val []byte) error {
					activeId = string(val)
					return nil
				}); err != nil {
					return err
				}
				if activeId == job.Id {
					if err := tx.Delete(activeKey); err != nil {
						return err
					}
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by id.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.SyncJob, error) {
	var result *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetActiveJob returns the tenant's queued or processing job.
func (r *JobRepository) GetActiveJob(ctx context.Context, tenantId string) (*core.SyncJob, error) {
	var result *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobActiveKey(tenantId))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		result, err = r.readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListJobs returns the tenant's jobs, most recent first, up to limit.
func (r *JobRepository) ListJobs(ctx context.Context, tenantId string, limit int) ([]*core.SyncJob, error) {
	var results []*core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialJobTenantKey(tenantId)
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration must seek past the last key of the prefix.
		seekKey := append(makePartialJobTenantKey(tenantId), 0xFF)
		for iter.Seek(seekKey); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}

			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			job, err := r.readJob(tx, makeJobKey(id))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	return results, err
}

// readJob reads a job within a transaction. Returns nil, nil if absent.
func (r *JobRepository) readJob(tx *badger.Txn, key []byte) (*core.SyncJob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.SyncJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalSyncJob(val)
		return unmarshalErr
	})
	return job, err
}
