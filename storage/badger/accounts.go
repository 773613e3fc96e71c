package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// AccountRepository implements storage.AccountRepository for BadgerDB.
type AccountRepository struct {
	backend *Backend
}

var _ storage.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(backend *Backend) *AccountRepository {
	return &AccountRepository{
		backend: backend,
	}
}

// Close is a no-op. The backend is owned by the store.
func (r *AccountRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *AccountRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutAccount stores or replaces the tenant's account link for an app.
func (r *AccountRepository) PutAccount(ctx context.Context, account *core.Account) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if account.ConnectedAt.IsZero() {
			account.ConnectedAt = time.Now().UTC()
		}
		key := makeAccountKey(account.TenantId, account.App)
		if err := tx.Set(key, storage.MarshalAccount(account)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetAccount retrieves the tenant's account link for an app.
func (r *AccountRepository) GetAccount(ctx context.Context, tenantId, app string) (*core.Account, error) {
	var result *core.Account
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeAccountKey(tenantId, app))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalAccount(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// DeleteAccount removes the tenant's account link for an app.
func (r *AccountRepository) DeleteAccount(ctx context.Context, tenantId, app string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAccountKey(tenantId, app)
		if _, err := tx.Get(key); err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		} else if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
