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


package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/poiesic/mailgraph/batch"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/metrics"
	"github.com/poiesic/mailgraph/normalize"
	"github.com/poiesic/mailgraph/storage"
	"github.com/poiesic/mailgraph/syncjob"
)

// Delivery statuses returned to the webhook caller.
const (
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
)

// DefaultProcessTimeout bounds the background processing of one event.
const DefaultProcessTimeout = 2 * time.Minute

var (
	// ErrStoreRequired is returned when no store is provided.
	ErrStoreRequired = errors.New("store is required")

	// ErrEngineRequired is returned when no extraction engine is provided.
	ErrEngineRequired = errors.New("extraction engine is required")

	// ErrNormalizerRequired is returned when no normalizer is provided.
	ErrNormalizerRequired = errors.New("normalizer is required")
)

// Result is the synchronous answer to one delivery. Processing itself
// happens in the background after a queued result is returned.
type Result struct {
	Status    string `json:"status"`
	MessageId string `json:"message_id"`
	TenantId  string `json:"user_id"`
}

// payload mirrors the Pipedream Gmail trigger delivery.
type payload struct {
	ExternalUserId string `json:"external_user_id"`
	AccountId      string `json:"account_id"`
	Event          struct {
		Id           string `json:"id"`
		ThreadId     string `json:"threadId"`
		InternalDate string `json:"internalDate"`
		Payload      struct {
			MimeType string `json:"mimeType"`
			Headers  []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
			Body struct {
				Data string `json:"data"`
			} `json:"body"`
			Parts []struct {
				MimeType string `json:"mimeType"`
				Body     struct {
					Data string `json:"data"`
				} `json:"body"`
			} `json:"parts"`
		} `json:"payload"`
	} `json:"event"`
}

// Handler turns webhook deliveries into graph updates.
type Handler struct {
	store      storage.Store
	engine     extract.Engine
	normalizer *normalize.Normalizer
	embedder   extract.Embedder
	builder    *batch.Builder
	schema     *jsonschema.Schema
	pool       *ants.Pool
	logger     *slog.Logger

	maxAttempts    int
	retryBase      time.Duration
	retryCeiling   time.Duration
	processTimeout time.Duration

	// wg tracks in-flight background processing for Release and tests.
	wg sync.WaitGroup
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler) error

// WithEmbedder enables document embedding for cached webhook emails.
func WithEmbedder(embedder extract.Embedder) HandlerOption {
	return func(h *Handler) error {
		h.embedder = embedder
		return nil
	}
}

// WithPoolSize sets the background worker pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) HandlerOption {
	return func(h *Handler) error {
		if size < 1 {
			size = 1
		}
		if h.pool != nil {
			h.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		h.pool = pool
		return nil
	}
}

// WithRetryPolicy sets the extraction retry policy for webhook episodes.
func WithRetryPolicy(maxAttempts int, base, ceiling time.Duration) HandlerOption {
	return func(h *Handler) error {
		if maxAttempts > 0 {
			h.maxAttempts = maxAttempts
		}
		if base > 0 {
			h.retryBase = base
		}
		if ceiling > 0 {
			h.retryCeiling = ceiling
		}
		return nil
	}
}

// WithProcessTimeout bounds the background processing of one event.
func WithProcessTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) error {
		if timeout > 0 {
			h.processTimeout = timeout
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) error {
		if logger != nil {
			h.logger = logger.With("component", "webhook")
		}
		return nil
	}
}

// NewHandler creates a webhook handler over the given dependencies.
func NewHandler(store storage.Store, engine extract.Engine, normalizer *normalize.Normalizer, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if normalizer == nil {
		return nil, ErrNormalizerRequired
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		store:          store,
		engine:         engine,
		normalizer:     normalizer,
		builder:        batch.NewBuilder(batch.DefaultBodyLimit),
		schema:         schema,
		pool:           pool,
		logger:         slog.Default().With("component", "webhook"),
		maxAttempts:    syncjob.DefaultMaxAttempts,
		retryBase:      syncjob.DefaultRetryBase,
		retryCeiling:   syncjob.DefaultRetryCeiling,
		processTimeout: DefaultProcessTimeout,
	}
	for _, opt := range opts {
		if optErr := opt(h); optErr != nil {
			h.pool.Release()
			return nil, optErr
		}
	}
	return h, nil
}

// Process handles one raw delivery. It validates the payload, claims the
// event in the webhook ledger, and schedules background processing. Two
// concurrent deliveries of the same message yield exactly one queued
// result; the others see duplicate.
func (h *Handler) Process(ctx context.Context, raw []byte) (*Result, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		metrics.RecordWebhookRejected()
		return nil, fmt.Errorf("%w: %s", core.ErrMalformedPayload, err)
	}
	if err := h.schema.Validate(doc); err != nil {
		metrics.RecordWebhookRejected()
		return nil, fmt.Errorf("%w: %s", core.ErrMalformedPayload, err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		metrics.RecordWebhookRejected()
		return nil, fmt.Errorf("%w: %s", core.ErrMalformedPayload, err)
	}
	msg := p.message()

	// Claim the event before any work. Under concurrent redelivery the
	// losing request sees a duplicate-key conflict and stops here.
	claim := &core.WebhookEventRecord{
		MessageId: msg.Id,
		TenantId:  p.ExternalUserId,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Ledgers().ClaimWebhookEvent(ctx, claim); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			metrics.RecordWebhookDuplicate()
			h.logger.Debug("duplicate webhook delivery",
				"message_id", msg.Id,
				"tenant_id", p.ExternalUserId)
			return &Result{
				Status:    StatusDuplicate,
				MessageId: msg.Id,
				TenantId:  p.ExternalUserId,
			}, nil
		}
		return nil, fmt.Errorf("claim webhook event: %w", err)
	}

	tenantKey := core.TenantKey(p.ExternalUserId)
	h.wg.Add(1)
	submitErr := h.pool.Submit(func() {
		defer h.wg.Done()
		procCtx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		defer cancel()
		if err := h.process(procCtx, tenantKey, msg); err != nil {
			h.logger.Error("webhook processing failed",
				"message_id", msg.Id,
				"tenant_id", p.ExternalUserId,
				"error", err)
		}
	})
	if submitErr != nil {
		h.wg.Done()
		return nil, fmt.Errorf("schedule webhook processing: %w", submitErr)
	}

	metrics.RecordWebhookEvent()
	h.logger.Info("webhook event queued",
		"message_id", msg.Id,
		"tenant_id", p.ExternalUserId)
	return &Result{
		Status:    StatusQueued,
		MessageId: msg.Id,
		TenantId:  p.ExternalUserId,
	}, nil
}

// process runs the extraction pipeline for one claimed message.
func (h *Handler) process(ctx context.Context, tenantKey string, msg *core.Message) error {
	episode := h.builder.BuildWebhook(tenantKey, msg)

	// The episode ledger still applies: a backfill sync may have covered
	// this message under a webhook source id already.
	processed, err := h.store.Ledgers().IsEpisodeProcessed(ctx, episode.Source, episode.SourceId, tenantKey)
	if err != nil {
		return fmt.Errorf("check episode ledger: %w", err)
	}
	if processed {
		metrics.RecordEpisodeDuplicate()
		return nil
	}

	if err := h.normalizer.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure graph indexes: %w", err)
	}

	var result *extract.Result
	submitStart := time.Now()
	err = syncjob.RetryWithBackoff(ctx, func() error {
		var submitErr error
		result, submitErr = h.engine.Submit(ctx, episode)
		return submitErr
	}, h.maxAttempts, h.retryBase, h.retryCeiling, func(attempt int, delay time.Duration, err error) {
		metrics.RecordExtractionRetry()
	})
	if err != nil {
		metrics.RecordEpisodeFailed()
		return fmt.Errorf("submit episode: %w", err)
	}
	metrics.RecordEpisodeSubmitted()
	metrics.RecordEpisodeLatency(time.Since(submitStart).Seconds())
	metrics.RecordEmailsProcessed(1)

	record := &core.ProcessedEpisodeRecord{
		Source:    episode.Source,
		SourceId:  episode.SourceId,
		TenantId:  tenantKey,
		EpisodeId: result.EpisodeId,
	}
	if err := h.store.Ledgers().RecordEpisode(ctx, record); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("record episode: %w", err)
	}

	counts := h.normalizer.NormalizeAndPersist(ctx, result.Nodes, tenantKey)
	h.logger.Info("webhook email processed",
		"message_id", msg.Id,
		"entities", len(result.Nodes),
		"companies", counts.Companies,
		"contacts", counts.Contacts,
		"deals", counts.Deals,
		"skipped", counts.Skipped)

	if err := h.storeDocument(ctx, tenantKey, msg); err != nil {
		// The graph write already succeeded; a cache failure is not fatal
		h.logger.Warn("failed to cache webhook document", "message_id", msg.Id, "error", err)
	}
	return nil
}

// storeDocument caches the webhook email with an embedding.
func (h *Handler) storeDocument(ctx context.Context, tenantKey string, msg *core.Message) error {
	body := batch.Sanitize(msg.PlainTextBody())
	subject := batch.Sanitize(msg.Header("Subject"))
	doc := &core.Document{
		TenantId:   tenantKey,
		MessageId:  msg.Id,
		ThreadId:   msg.ThreadId,
		Subject:    subject,
		Sender:     batch.CleanSender(msg.Header("From")),
		Recipient:  batch.CleanSender(msg.Header("To")),
		DateHeader: msg.Header("Date"),
		Body:       body,
	}

	if h.embedder != nil {
		vector, err := h.embedder.EmbedText(ctx, subject+"\n"+body)
		if err != nil {
			return fmt.Errorf("embed document: %w", err)
		}
		doc.Vector = vector
	}

	if err := h.store.Documents().PutDocuments(ctx, doc); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	metrics.RecordDocumentsStored(1)
	return nil
}

// Wait blocks until all scheduled background processing has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Release waits for in-flight processing and releases the worker pool.
// The handler should not be used after calling Release.
func (h *Handler) Release() {
	h.wg.Wait()
	if h.pool != nil {
		h.pool.Release()
	}
}

// message converts the delivery event into the internal message shape.
// A missing or unparseable internalDate falls back to the receipt time;
// the raw Date header still carries the sender's own formatting.
func (p *payload) message() *core.Message {
	internalDate, err := strconv.ParseInt(p.Event.InternalDate, 10, 64)
	if err != nil {
		internalDate = time.Now().UTC().UnixMilli()
	}

	msg := &core.Message{
		Id:           p.Event.Id,
		ThreadId:     p.Event.ThreadId,
		InternalDate: internalDate,
	}
	for _, hd := range p.Event.Payload.Headers {
		msg.Headers = append(msg.Headers, core.Header{Name: hd.Name, Value: hd.Value})
	}
	if p.Event.Payload.Body.Data != "" {
		mimeType := p.Event.Payload.MimeType
		if mimeType == "" {
			mimeType = "text/plain"
		}
		msg.Parts = append(msg.Parts, core.BodyPart{
			MimeType: mimeType,
			Data:     p.Event.Payload.Body.Data,
		})
	}
	for _, part := range p.Event.Payload.Parts {
		if part.Body.Data == "" {
			continue
		}
		msg.Parts = append(msg.Parts, core.BodyPart{
			MimeType: part.MimeType,
			Data:     part.Body.Data,
		})
	}
	return msg
}
