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
	"slices"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// DocumentRepository implements storage.DocumentRepository for PostgreSQL.
//
// Similarity search scans the tenant's rows and scores them in process.
// The document corpus is one mailbox per tenant, small enough that a scan
// beats maintaining a vector index.
type DocumentRepository struct {
	store *Store
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// Close is a no-op. The connection pool is owned by the store.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the store.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.withTransaction(ctx, fn)
}

// PutDocuments stores documents, overwriting any existing document with the
// same (tenant, message id).
func (r *DocumentRepository) PutDocuments(ctx context.Context, docs ...*core.Document) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, doc := range docs {
		if doc.Id == 0 {
			doc.Id = core.IDFromContent(doc.TenantId + ":" + doc.MessageId)
		}
		if doc.InsertedAt.IsZero() {
			doc.InsertedAt = now
		}
		doc.UpdatedAt = now

		_, err := r.store.db.ExecContext(ctx,
			`INSERT INTO `+documentTable+` (id, tenant_id, message_id, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id)
			 DO UPDATE SET payload = EXCLUDED.payload`,
			int64(doc.Id), doc.TenantId, doc.MessageId, storage.MarshalDocument(doc))
		if err != nil {
			return err
		}
	}
	return nil
}

// GetDocument retrieves a document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT payload FROM `+documentTable+` WHERE id = $1`, int64(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalDocument(payload)
}

// GetDocumentByMessage retrieves a tenant's document for a message id.
func (r *DocumentRepository) GetDocumentByMessage(ctx context.Context, tenantId, messageId string) (*core.Document, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT payload FROM `+documentTable+` WHERE tenant_id = $1 AND message_id = $2`,
		tenantId, messageId).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalDocument(payload)
}

// FindSimilar finds a tenant's documents similar to the given vector.
func (r *DocumentRepository) FindSimilar(ctx context.Context, tenantId string, vector []float32, minSimilarity float32, limit int) ([]*core.DocumentMatch, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT payload FROM `+documentTable+` WHERE tenant_id = $1`, tenantId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.DocumentMatch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		doc, err := storage.UnmarshalDocument(payload)
		if err != nil {
			return nil, err
		}
		if len(doc.Vector) == 0 {
			continue
		}

		// Cosine similarity reduces to a dot product for normalized vectors
		similarity := dotProduct(vector, doc.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.DocumentMatch{
				Document: doc,
				Score:    similarity,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.DocumentMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
