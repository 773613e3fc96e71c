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


// Package postgres provides a PostgreSQL-backed implementation of the
// storage repositories for deployments that share state across processes.
// Record payloads are stored in their binary wire form; only the columns
// needed for lookups and constraints are broken out.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/poiesic/mailgraph/storage"
)

const (
	episodeLedgerTable = "mailgraph_episode_ledger"
	webhookLedgerTable = "mailgraph_webhook_ledger"
	syncJobTable       = "mailgraph_sync_jobs"
	accountTable       = "mailgraph_accounts"
	documentTable      = "mailgraph_documents"

	schemaTimeout = 5 * time.Second
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + episodeLedgerTable + ` (
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (source, source_id, tenant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + webhookLedgerTable + ` (
		tenant_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + syncJobTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ` + syncJobTable + `_tenant_created_idx
		ON ` + syncJobTable + ` (tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ` + accountTable + ` (
		tenant_id TEXT NOT NULL,
		app TEXT NOT NULL,
		payload BYTEA NOT NULL,
		PRIMARY KEY (tenant_id, app)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + documentTable + ` (
		id BIGINT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		payload BYTEA NOT NULL,
		UNIQUE (tenant_id, message_id)
	)`,
}

// Store implements storage.Store over a shared PostgreSQL database.
// The schema is created lazily on first use.
type Store struct {
	dsn    string
	openDB func(driverName, dsn string) (*sql.DB, error)

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store for the given connection string.
// The connection is not opened until the first operation.
func NewStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, storage.ErrStorageClosed
	}
	return &Store{
		dsn:    dsn,
		openDB: sql.Open,
	}, nil
}

// Ledgers returns the idempotency ledger repository.
func (s *Store) Ledgers() storage.LedgerRepository {
	return &LedgerRepository{store: s}
}

// Jobs returns the sync job repository.
func (s *Store) Jobs() storage.JobRepository {
	return &JobRepository{store: s}
}

// Accounts returns the account link repository.
func (s *Store) Accounts() storage.AccountRepository {
	return &AccountRepository{store: s}
}

// Documents returns the document repository.
func (s *Store) Documents() storage.DocumentRepository {
	return &DocumentRepository{store: s}
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ensureReady opens the connection and applies the schema exactly once.
func (s *Store) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
		defer cancel()

		for _, stmt := range schemaStatements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

// withTransaction runs fn inside a database transaction.
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
