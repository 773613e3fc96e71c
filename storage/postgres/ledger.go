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
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// LedgerRepository implements storage.LedgerRepository for PostgreSQL.
//
// Both ledgers rely on primary key constraints: a conflicting insert
// affects zero rows, so concurrent writers of the same key agree that
// exactly one of them recorded it.
type LedgerRepository struct {
	store *Store
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// Close is a no-op. The connection pool is owned by the store.
func (r *LedgerRepository) Close() error {
	return nil
}

// WithTransaction delegates to the store.
func (r *LedgerRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.withTransaction(ctx, fn)
}

// RecordEpisode stores an episode ledger row.
func (r *LedgerRepository) RecordEpisode(ctx context.Context, record *core.ProcessedEpisodeRecord) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO `+episodeLedgerTable+` (source, source_id, tenant_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source, source_id, tenant_id) DO NOTHING`,
		record.Source, record.SourceId, record.TenantId,
		storage.MarshalProcessedEpisode(record), record.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// IsEpisodeProcessed reports whether the triple is already recorded.
func (r *LedgerRepository) IsEpisodeProcessed(ctx context.Context, source, sourceId, tenantId string) (bool, error) {
	if err := r.store.ensureReady(); err != nil {
		return false, err
	}

	var found bool
	err := r.store.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM `+episodeLedgerTable+`
			WHERE source = $1 AND source_id = $2 AND tenant_id = $3
		)`, source, sourceId, tenantId).Scan(&found)
	return found, err
}

// ClaimWebhookEvent atomically records a webhook event before processing.
func (r *LedgerRepository) ClaimWebhookEvent(ctx context.Context, record *core.WebhookEventRecord) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO `+webhookLedgerTable+` (tenant_id, message_id, payload, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, message_id) DO NOTHING`,
		record.TenantId, record.MessageId,
		storage.MarshalWebhookEvent(record), record.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}
