package core

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for locally stored records.
// It is generated using content-based hashing so that identical content
// produces identical IDs.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// TenantKey hashes a raw tenant identifier into a stable 16-character hex
// group id. Raw tenant ids may contain characters that break downstream
// full-text query syntax; the hash is safe everywhere and consistent for
// the same input.
func TenantKey(raw string) string {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// Header is a single name/value header from a provider message.
type Header struct {
	Name  string
	Value string
}

// BodyPart is one MIME part of a provider message. Data holds the
// provider's base64url-encoded content exactly as delivered.
type BodyPart struct {
	MimeType string
	Data     string
}

// Message is a raw provider item. Immutable once fetched.
type Message struct {
	Id           string
	ThreadId     string
	InternalDate int64 // provider timestamp, epoch milliseconds
	Headers      []Header
	Parts        []BodyPart
}

// Timestamp returns the provider timestamp as a UTC time.
func (m *Message) Timestamp() time.Time {
	return time.UnixMilli(m.InternalDate).UTC()
}

// Header returns the value of the first header matching name
// (case-insensitive), or "" if absent.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// PlainTextBody returns the decoded text/plain content of the message, or ""
// when no plain part exists. HTML-only messages yield "" on purpose; callers
// fall back to the subject line.
func (m *Message) PlainTextBody() string {
	for _, p := range m.Parts {
		if p.MimeType == "text/plain" && p.Data != "" {
			return decodeBody(p.Data)
		}
	}
	return ""
}

// decodeBody decodes provider base64url body data, tolerating both padded
// and unpadded forms.
func decodeBody(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}

// SubBatch is a same-day slice of chronologically ordered messages.
type SubBatch struct {
	Date     time.Time // UTC midnight of the bucket day
	Index    int       // 1-based position within the day
	Messages []*Message
}

// Episode is one text unit submitted to the extraction engine, covering a
// sub-batch of source messages. Never mutated after construction.
type Episode struct {
	Name              string
	Body              string
	SourceDescription string
	ReferenceTime     time.Time // timestamp of the oldest message in the batch
	TenantId          string    // hashed tenant key, see TenantKey
	Source            string    // e.g. "gmail"
	SourceId          string    // stable per-batch id used by the episode ledger
	MessageIds        []string
}

// ExtractedEntity is a node produced by the extraction engine.
// Attributes is a free-form bag and must never be used for identity.
type ExtractedEntity struct {
	UUID       string
	Name       string
	Labels     []string
	Attributes map[string]any
}

// ExtractedEdge is a relationship produced by the extraction engine
// between two extracted entities.
type ExtractedEdge struct {
	UUID       string
	SourceUUID string
	TargetUUID string
	Type       string
	Fact       string
	ValidAt    *time.Time
}

// EntityKind identifies a canonical business entity type.
type EntityKind string

const (
	KindCompany EntityKind = "Company"
	KindContact EntityKind = "Contact"
	KindDeal    EntityKind = "Deal"
)

// CompanyAttrs holds the optional typed attributes of a canonical Company.
type CompanyAttrs struct {
	Industry    *string
	Location    *string
	Description *string
}

// ContactAttrs holds the optional typed attributes of a canonical Contact.
type ContactAttrs struct {
	Email *string
	Title *string
	Phone *string
}

// DealAttrs holds the optional typed attributes of a canonical Deal.
type DealAttrs struct {
	Amount   *int64
	Stage    *string
	Products *string
}

// CanonicalEntity is a normalized, deduplicated business object, distinct
// from the extraction engine's raw nodes. Exactly one of Company, Contact
// or Deal is non-nil, matching Kind. Residual preserves unrecognized
// extracted attributes; it is provenance only and never part of identity.
type CanonicalEntity struct {
	Kind        EntityKind
	NaturalKey  string
	Name        string
	CanonicalId string
	TenantId    string
	Source      string
	ExtractedId string // UUID of the originating extracted node

	Company *CompanyAttrs
	Contact *ContactAttrs
	Deal    *DealAttrs

	Residual map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is final. No transition ever leaves
// a terminal status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Active reports whether the status counts against the
// one-active-job-per-tenant admission rule.
func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobProcessing
}

// Phase names the stage a running sync job is in.
type Phase string

const (
	PhaseFetchingIds     Phase = "fetching_ids"
	PhaseFetchingDetails Phase = "fetching_details"
	PhaseProcessing      Phase = "processing"
)

// Progress is the structured progress field of a sync job.
type Progress struct {
	Phase   Phase
	Percent int
}

// MaxErrorMessageLen bounds the stored error message of a failed job.
const MaxErrorMessageLen = 500

// TruncateError bounds an error message to MaxErrorMessageLen bytes.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorMessageLen {
		return msg[:MaxErrorMessageLen]
	}
	return msg
}

// SyncJob is the persistent record of one background sync request.
type SyncJob struct {
	Id              string
	TenantId        string // raw tenant id, not the hashed key
	AccountId       string
	Days            int
	Status          JobStatus
	Progress        Progress
	EmailsProcessed int
	TaskHandle      string // handle of the dispatched unit of work
	ErrorMessage    string // truncated, see TruncateError
	CreatedAt       time.Time
	StartedAt       time.Time // zero until processing begins
	CompletedAt     time.Time // zero until a terminal status is reached
}

// ProcessedEpisodeRecord is the episode-level idempotency ledger row.
// Created only after a successful extraction-engine submission.
type ProcessedEpisodeRecord struct {
	Source    string
	SourceId  string
	TenantId  string
	EpisodeId string
	CreatedAt time.Time
}

// WebhookEventRecord is the webhook-level idempotency ledger row. Created
// before any processing begins, closing the race window between concurrent
// deliveries of the same event.
type WebhookEventRecord struct {
	MessageId string
	TenantId  string
	CreatedAt time.Time
}

// Account links a tenant to a connected provider account.
type Account struct {
	TenantId       string
	App            string // e.g. "gmail"
	ExternalUserId string
	AccountId      string
	Status         string // "active" or "disconnected"
	ConnectedAt    time.Time
}

// Document is a cached source email with its embedding vector.
type Document struct {
	Id         ID
	TenantId   string
	MessageId  string
	ThreadId   string
	Subject    string
	Sender     string
	Recipient  string
	DateHeader string
	Body       string
	Vector     []float32 // Embedding vector for semantic search
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// DocumentMatch is a document similarity-search hit.
type DocumentMatch struct {
	Document *Document
	Score    float32
}
