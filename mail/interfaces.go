package mail

import (
	"context"
	"time"

	"github.com/poiesic/mailgraph/core"
)

// Credential identifies a connected provider account on behalf of a tenant.
type Credential struct {
	// ExternalUserId is the tenant's id as registered with the OAuth proxy.
	ExternalUserId string

	// AccountId is the proxy's handle for the connected mail account.
	AccountId string
}

// Query selects which messages to list.
type Query struct {
	// After restricts results to messages received at or after this time.
	After time.Time

	// MaxResults bounds the page size. Providers may return fewer.
	MaxResults int

	// PageToken continues a previous listing; empty starts from the top.
	PageToken string
}

// Page is one page of a message listing.
type Page struct {
	// Ids are the message ids on this page, newest first as delivered by
	// the provider.
	Ids []string

	// NextPageToken continues the listing; empty means the listing is
	// exhausted.
	NextPageToken string

	// SizeEstimate is the provider's estimate of the total result count.
	// Zero when the provider does not report one.
	SizeEstimate int
}

// Provider fetches messages from a mail service.
// Implementations must be thread-safe for concurrent use.
type Provider interface {
	// List returns one page of message ids matching the query.
	// Callers follow Page.NextPageToken until it comes back empty.
	List(ctx context.Context, cred Credential, q Query) (*Page, error)

	// Get fetches the full message with the given id.
	Get(ctx context.Context, cred Credential, id string) (*core.Message, error)
}
