package storage

import (
	"context"

	"github.com/poiesic/mailgraph/core"
)

// Repository provides common storage operations shared across all
// repositories. Implementations must be thread-safe and support concurrent
// access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// LedgerRepository provides the idempotency ledgers.
//
// The episode ledger is write-after-success: a record exists only once the
// extraction engine accepted the episode, so a crash between submission and
// recording at worst causes one re-submission. The webhook ledger is
// write-before: the record is claimed before any processing, so concurrent
// deliveries of the same event race on the insert and exactly one wins.
type LedgerRepository interface {
	Repository

	// RecordEpisode stores an episode ledger row after a successful
	// submission. Returns ErrDuplicateKey if the
	// (source, source id, tenant) triple is already recorded.
	RecordEpisode(ctx context.Context, record *core.ProcessedEpisodeRecord) error

	// IsEpisodeProcessed reports whether the triple is already recorded.
	IsEpisodeProcessed(ctx context.Context, source, sourceId, tenantId string) (bool, error)

	// ClaimWebhookEvent atomically records a webhook event before
	// processing. Returns ErrDuplicateKey if the (message id, tenant) pair
	// was already claimed.
	ClaimWebhookEvent(ctx context.Context, record *core.WebhookEventRecord) error
}

// JobRepository provides operations for managing sync jobs.
type JobRepository interface {
	Repository

	// CreateJob stores a new job. Returns ErrActiveJobExists if the
	// tenant already has a job in a non-terminal status.
	CreateJob(ctx context.Context, job *core.SyncJob) error

	// UpdateJob persists the job's current state. Transitions out of a
	// terminal status return ErrInvalidTransition.
	UpdateJob(ctx context.Context, job *core.SyncJob) error

	// GetJob retrieves a job by id.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.SyncJob, error)

	// GetActiveJob returns the tenant's queued or processing job.
	// Returns ErrNotFound if the tenant has no active job.
	GetActiveJob(ctx context.Context, tenantId string) (*core.SyncJob, error)

	// ListJobs returns the tenant's jobs, most recent first, up to limit.
	ListJobs(ctx context.Context, tenantId string, limit int) ([]*core.SyncJob, error)
}

// AccountRepository provides tenant to provider account links.
type AccountRepository interface {
	Repository

	// PutAccount stores or replaces the tenant's account link for an app.
	PutAccount(ctx context.Context, account *core.Account) error

	// GetAccount retrieves the tenant's account link for an app.
	// Returns ErrNotFound if no link exists.
	GetAccount(ctx context.Context, tenantId, app string) (*core.Account, error)

	// DeleteAccount removes the tenant's account link for an app.
	// Returns ErrNotFound if no link exists.
	DeleteAccount(ctx context.Context, tenantId, app string) error
}

// DocumentRepository provides the cached email document store.
type DocumentRepository interface {
	Repository

	// PutDocuments stores documents, overwriting any existing document
	// with the same (tenant, message id). Ids are content-derived; the
	// same email always lands on the same key.
	PutDocuments(ctx context.Context, docs ...*core.Document) error

	// GetDocument retrieves a document by id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentByMessage retrieves a tenant's document for a message id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocumentByMessage(ctx context.Context, tenantId, messageId string) (*core.Document, error)

	// FindSimilar finds a tenant's documents similar to the given vector.
	// Returns documents with similarity >= minSimilarity, up to limit
	// results, ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, tenantId string, vector []float32, minSimilarity float32, limit int) ([]*core.DocumentMatch, error)
}

// Store aggregates the repositories a running service needs.
type Store interface {
	Ledgers() LedgerRepository
	Jobs() JobRepository
	Accounts() AccountRepository
	Documents() DocumentRepository
	Close() error
}
