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

// LedgerRepository implements storage.LedgerRepository for BadgerDB.
type LedgerRepository struct {
	backend *Backend
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(backend *Backend) *LedgerRepository {
	return &LedgerRepository{
		backend: backend,
	}
}

// Close is a no-op. The backend is owned by the store.
func (r *LedgerRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *LedgerRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// RecordEpisode stores an episode ledger row.
// Returns storage.ErrDuplicateKey if the triple is already recorded. A
// conflicting concurrent write maps to the same error so both callers agree
// that exactly one of them recorded the episode.
func (r *LedgerRepository) RecordEpisode(ctx context.Context, record *core.ProcessedEpisodeRecord) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEpisodeLedgerKey(record.Source, record.SourceId, record.TenantId)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		if err := tx.Set(key, storage.MarshalProcessedEpisode(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrDuplicateKey
	}
	return err
}

// IsEpisodeProcessed reports whether the triple is already recorded.
func (r *LedgerRepository) IsEpisodeProcessed(ctx context.Context, source, sourceId, tenantId string) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeEpisodeLedgerKey(source, sourceId, tenantId))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// ClaimWebhookEvent atomically records a webhook event before processing.
// Returns storage.ErrDuplicateKey if the pair was already claimed.
func (r *LedgerRepository) ClaimWebhookEvent(ctx context.Context, record *core.WebhookEventRecord) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeWebhookLedgerKey(record.TenantId, record.MessageId)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		if err := tx.Set(key, storage.MarshalWebhookEvent(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrDuplicateKey
	}
	return err
}
