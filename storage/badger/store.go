package badger

import (
	"github.com/poiesic/mailgraph/storage"
)

// Store implements storage.Store over a single BadgerDB backend.
type Store struct {
	backend   *Backend
	ledgers   *LedgerRepository
	jobs      *JobRepository
	accounts  *AccountRepository
	documents *DocumentRepository
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store backed by BadgerDB at path.
func NewStore(path string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	return &Store{
		backend:   backend,
		ledgers:   NewLedgerRepository(backend),
		jobs:      NewJobRepository(backend),
		accounts:  NewAccountRepository(backend),
		documents: NewDocumentRepository(backend),
	}, nil
}

// Ledgers returns the idempotency ledger repository.
func (s *Store) Ledgers() storage.LedgerRepository {
	return s.ledgers
}

// Jobs returns the sync job repository.
func (s *Store) Jobs() storage.JobRepository {
	return s.jobs
}

// Accounts returns the account link repository.
func (s *Store) Accounts() storage.AccountRepository {
	return s.accounts
}

// Documents returns the document repository.
func (s *Store) Documents() storage.DocumentRepository {
	return s.documents
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
