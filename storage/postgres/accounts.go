package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// AccountRepository implements storage.AccountRepository for PostgreSQL.
type AccountRepository struct {
	store *Store
}

var _ storage.AccountRepository = (*AccountRepository)(nil)

// Close is a no-op. The connection pool is owned by the store.
func (r *AccountRepository) Close() error {
	return nil
}

// WithTransaction delegates to the store.
func (r *AccountRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.withTransaction(ctx, fn)
}

// PutAccount stores or replaces the tenant's account link for an app.
func (r *AccountRepository) PutAccount(ctx context.Context, account *core.Account) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}
	if account.ConnectedAt.IsZero() {
		account.ConnectedAt = time.Now().UTC()
	}

	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO `+accountTable+` (tenant_id, app, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, app)
		 DO UPDATE SET payload = EXCLUDED.payload`,
		account.TenantId, account.App, storage.MarshalAccount(account))
	return err
}

// GetAccount retrieves the tenant's account link for an app.
func (r *AccountRepository) GetAccount(ctx context.Context, tenantId, app string) (*core.Account, error) {
	if err := r.store.ensureReady(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.store.db.QueryRowContext(ctx,
		`SELECT payload FROM `+accountTable+` WHERE tenant_id = $1 AND app = $2`,
		tenantId, app).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalAccount(payload)
}

// DeleteAccount removes the tenant's account link for an app.
func (r *AccountRepository) DeleteAccount(ctx context.Context, tenantId, app string) error {
	if err := r.store.ensureReady(); err != nil {
		return err
	}

	res, err := r.store.db.ExecContext(ctx,
		`DELETE FROM `+accountTable+` WHERE tenant_id = $1 AND app = $2`,
		tenantId, app)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
