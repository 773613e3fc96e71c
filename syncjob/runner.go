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


package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailgraph/batch"
	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/fetch"
	"github.com/poiesic/mailgraph/mail"
	"github.com/poiesic/mailgraph/metrics"
	"github.com/poiesic/mailgraph/normalize"
	"github.com/poiesic/mailgraph/storage"
)

// Default runner tuning. The time limits leave the hard limit a minute
// above the soft one so a job that overruns still gets a clean shutdown.
const (
	DefaultSoftTimeLimit = 840 * time.Second
	DefaultHardTimeLimit = 900 * time.Second
	DefaultEpisodePause  = 3 * time.Second
	DefaultMaxAttempts   = 5
	DefaultRetryBase     = 60 * time.Second
	DefaultRetryCeiling  = 10 * time.Minute
)

// Runner executes a single sync job end to end.
type Runner struct {
	store      storage.Store
	fetcher    *fetch.Fetcher
	engine     extract.Engine
	normalizer *normalize.Normalizer
	embedder   extract.Embedder
	builder    *batch.Builder
	logger     *slog.Logger

	maxPerBatch  int
	pause        time.Duration
	softLimit    time.Duration
	hardLimit    time.Duration
	maxAttempts  int
	retryBase    time.Duration
	retryCeiling time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEmbedder enables document embedding with the given embedder.
// Without one, documents are cached without vectors and similarity search
// returns nothing for them.
func WithEmbedder(embedder extract.Embedder) RunnerOption {
	return func(r *Runner) {
		r.embedder = embedder
	}
}

// WithEpisodePause sets the pause between episode submissions.
func WithEpisodePause(pause time.Duration) RunnerOption {
	return func(r *Runner) {
		if pause >= 0 {
			r.pause = pause
		}
	}
}

// WithTimeLimits sets the soft and hard time limits for a job.
func WithTimeLimits(soft, hard time.Duration) RunnerOption {
	return func(r *Runner) {
		if soft > 0 {
			r.softLimit = soft
		}
		if hard > 0 {
			r.hardLimit = hard
		}
	}
}

// WithRetryPolicy sets the extraction retry policy.
func WithRetryPolicy(maxAttempts int, base, ceiling time.Duration) RunnerOption {
	return func(r *Runner) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if base > 0 {
			r.retryBase = base
		}
		if ceiling > 0 {
			r.retryCeiling = ceiling
		}
	}
}

// WithBatchSize sets the maximum messages per episode.
func WithBatchSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.maxPerBatch = size
		}
	}
}

// WithRunnerLogger sets a custom logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.With("component", "sync-runner")
		}
	}
}

// NewRunner creates a runner over the given dependencies.
func NewRunner(store storage.Store, provider mail.Provider, engine extract.Engine, normalizer *normalize.Normalizer, opts ...RunnerOption) (*Runner, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if normalizer == nil {
		return nil, ErrNormalizerRequired
	}

	logger := slog.Default().With("component", "sync-runner")
	r := &Runner{
		store:        store,
		engine:       engine,
		normalizer:   normalizer,
		builder:      batch.NewBuilder(batch.DefaultBodyLimit),
		logger:       logger,
		maxPerBatch:  batch.DefaultMaxPerBatch,
		pause:        DefaultEpisodePause,
		softLimit:    DefaultSoftTimeLimit,
		hardLimit:    DefaultHardTimeLimit,
		maxAttempts:  DefaultMaxAttempts,
		retryBase:    DefaultRetryBase,
		retryCeiling: DefaultRetryCeiling,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.fetcher = fetch.NewFetcher(provider, fetch.DefaultPageSize, r.logger)
	return r, nil
}

// Run executes the job to a terminal status. The returned error reflects
// the job outcome; the job record is always updated before returning.
func (r *Runner) Run(ctx context.Context, job *core.SyncJob) error {
	ctx, cancel := context.WithTimeout(ctx, r.hardLimit)
	defer cancel()

	started := time.Now()
	logger := r.logger.With("job_id", job.Id, "tenant_id", job.TenantId)

	job.Status = core.JobProcessing
	job.StartedAt = started.UTC()
	if err := r.store.Jobs().UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	metrics.RecordJobStarted()

	err := r.run(ctx, job, logger)
	return r.finish(job, err, logger)
}

func (r *Runner) run(ctx context.Context, job *core.SyncJob, logger *slog.Logger) error {
	progress := newProgressWriter(r.store.Jobs(), job, logger)
	cred, err := r.credential(ctx, job)
	if err != nil {
		return err
	}

	// A rate-limited mailbox listing retries with the same backoff policy
	// as extraction; only transient errors are retried.
	after := time.Now().UTC().AddDate(0, 0, -job.Days)
	var messages []*core.Message
	err = RetryWithBackoff(ctx, func() error {
		var fetchErr error
		messages, fetchErr = r.fetcher.FetchSince(ctx, cred, after, func(p fetch.Progress) {
			percent := 0
			if p.Listed > 0 {
				percent = p.Fetched * 100 / p.Listed
			}
			progress.update(ctx, core.Progress{Phase: p.Phase, Percent: percent})
		})
		return fetchErr
	}, r.maxAttempts, r.retryBase, r.retryCeiling, func(attempt int, delay time.Duration, err error) {
		logger.Warn("fetch rate limited, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err)
	})
	if err != nil {
		return fmt.Errorf("fetch mailbox: %w", err)
	}

	tenantKey := core.TenantKey(job.TenantId)
	subBatches := batch.Group(messages, r.maxPerBatch)
	logger.Info("grouped messages into episodes",
		"messages", len(messages),
		"episodes", len(subBatches))

	if err := r.normalizer.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure graph indexes: %w", err)
	}

	started := time.Now()
	emailsDone := 0
	failed := 0
	for i, sb := range subBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if elapsed := time.Since(started); elapsed > r.softLimit {
			logger.Warn("soft time limit exceeded, stopping early",
				"elapsed", elapsed,
				"episodes_done", i,
				"episodes_total", len(subBatches))
			return fmt.Errorf("%w after %s", ErrTimeLimitExceeded, elapsed.Round(time.Second))
		}

		episode := r.builder.Build(tenantKey, sb)
		submitted, err := r.processEpisode(ctx, episode, sb.Messages, logger)
		switch {
		case err != nil && ctx.Err() != nil:
			// A cancel or deadline landed mid-episode; it is not an
			// episode failure.
			return ctx.Err()
		case err != nil:
			// One bad episode must not sink the whole sync
			failed++
			metrics.RecordEpisodeFailed()
			logger.Error("episode failed, continuing",
				"source_id", episode.SourceId,
				"error", err)
		case submitted:
			emailsDone += len(sb.Messages)
		}

		progress.bumpEmails(ctx, emailsDone, core.Progress{
			Phase:   core.PhaseProcessing,
			Percent: (i + 1) * 100 / len(subBatches),
		})

		// Pace submissions so the extraction engine is not flooded
		if r.pause > 0 && i+1 < len(subBatches) {
			timer := time.NewTimer(r.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if failed > 0 && failed == len(subBatches) {
		return fmt.Errorf("all %d episodes failed", failed)
	}
	logger.Info("sync finished",
		"emails_processed", emailsDone,
		"episodes_failed", failed)
	return nil
}

// processEpisode submits one episode and persists its downstream effects.
// Returns false with a nil error when the ledger already covers the
// episode; those messages are not re-counted as processed.
func (r *Runner) processEpisode(ctx context.Context, episode *core.Episode, messages []*core.Message, logger *slog.Logger) (bool, error) {
	ledgers := r.store.Ledgers()

	processed, err := ledgers.IsEpisodeProcessed(ctx, episode.Source, episode.SourceId, episode.TenantId)
	if err != nil {
		return false, fmt.Errorf("check episode ledger: %w", err)
	}
	if processed {
		metrics.RecordEpisodeDuplicate()
		logger.Debug("skipping already processed episode", "source_id", episode.SourceId)
		return false, nil
	}

	var result *extract.Result
	submitStart := time.Now()
	err = RetryWithBackoff(ctx, func() error {
		var submitErr error
		result, submitErr = r.engine.Submit(ctx, episode)
		return submitErr
	}, r.maxAttempts, r.retryBase, r.retryCeiling, func(attempt int, delay time.Duration, err error) {
		metrics.RecordExtractionRetry()
	})
	if err != nil {
		return false, fmt.Errorf("submit episode: %w", err)
	}
	metrics.RecordEpisodeSubmitted()
	metrics.RecordEpisodeLatency(time.Since(submitStart).Seconds())
	metrics.RecordEmailsProcessed(len(messages))

	record := &core.ProcessedEpisodeRecord{
		Source:    episode.Source,
		SourceId:  episode.SourceId,
		TenantId:  episode.TenantId,
		EpisodeId: result.EpisodeId,
	}
	if err := ledgers.RecordEpisode(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// A concurrent worker recorded it first; the extraction engine
			// upserts, so the double submission is harmless.
			metrics.RecordEpisodeDuplicate()
			return true, nil
		}
		return false, fmt.Errorf("record episode: %w", err)
	}

	counts := r.normalizer.NormalizeAndPersist(ctx, result.Nodes, episode.TenantId)
	recordNormalizeCounts(counts)
	logger.Info("episode processed",
		"source_id", episode.SourceId,
		"entities", len(result.Nodes),
		"companies", counts.Companies,
		"contacts", counts.Contacts,
		"deals", counts.Deals,
		"skipped", counts.Skipped)

	if err := r.storeDocuments(ctx, episode.TenantId, messages); err != nil {
		// The graph write already succeeded; a cache failure is not fatal
		logger.Warn("failed to cache documents", "error", err)
	}
	return true, nil
}

// storeDocuments caches the episode's source emails with embeddings.
func (r *Runner) storeDocuments(ctx context.Context, tenantKey string, messages []*core.Message) error {
	if len(messages) == 0 {
		return nil
	}

	docs := make([]*core.Document, 0, len(messages))
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		body := batch.Sanitize(msg.PlainTextBody())
		subject := batch.Sanitize(msg.Header("Subject"))
		docs = append(docs, &core.Document{
			TenantId:   tenantKey,
			MessageId:  msg.Id,
			ThreadId:   msg.ThreadId,
			Subject:    subject,
			Sender:     batch.CleanSender(msg.Header("From")),
			Recipient:  batch.CleanSender(msg.Header("To")),
			DateHeader: msg.Header("Date"),
			Body:       body,
		})
		texts = append(texts, subject+"\n"+body)
	}

	if r.embedder != nil {
		vectors, err := r.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		for i := range docs {
			if i < len(vectors) {
				docs[i].Vector = vectors[i]
			}
		}
	}

	if err := r.store.Documents().PutDocuments(ctx, docs...); err != nil {
		return fmt.Errorf("put documents: %w", err)
	}
	metrics.RecordDocumentsStored(len(docs))
	return nil
}

// credential resolves the provider credential for the job's tenant.
// A stored account link wins; otherwise the job's own account id is used.
func (r *Runner) credential(ctx context.Context, job *core.SyncJob) (mail.Credential, error) {
	account, err := r.store.Accounts().GetAccount(ctx, job.TenantId, batch.SourceGmail)
	if err == nil {
		return mail.Credential{
			ExternalUserId: account.ExternalUserId,
			AccountId:      account.AccountId,
		}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return mail.Credential{}, fmt.Errorf("load account: %w", err)
	}
	return mail.Credential{
		ExternalUserId: job.TenantId,
		AccountId:      job.AccountId,
	}, nil
}

// finish writes the job's terminal status. Terminal-transition conflicts
// are tolerated; a cancel may have landed first.
func (r *Runner) finish(job *core.SyncJob, runErr error, logger *slog.Logger) error {
	// Terminal writes use a fresh context; the run context may be dead.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		job.Status = core.JobCompleted
		job.Progress = core.Progress{Phase: core.PhaseProcessing, Percent: 100}
		metrics.RecordJobCompleted()
	case errors.Is(runErr, context.Canceled):
		job.Status = core.JobCancelled
		job.ErrorMessage = "cancelled by user"
		metrics.RecordJobCancelled()
	case errors.Is(runErr, context.DeadlineExceeded):
		job.Status = core.JobFailed
		job.ErrorMessage = core.TruncateError(fmt.Sprintf("sync timed out after %s", r.hardLimit))
		metrics.RecordJobFailed()
	default:
		job.Status = core.JobFailed
		job.ErrorMessage = core.TruncateError(runErr.Error())
		metrics.RecordJobFailed()
	}
	job.CompletedAt = time.Now().UTC()

	if err := r.store.Jobs().UpdateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			logger.Debug("job already terminal, keeping stored status")
			return runErr
		}
		logger.Error("failed to write terminal job status", "error", err)
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func recordNormalizeCounts(counts normalize.Counts) {
	for i := 0; i < counts.Companies; i++ {
		metrics.RecordEntityNormalized(string(core.KindCompany))
	}
	for i := 0; i < counts.Contacts; i++ {
		metrics.RecordEntityNormalized(string(core.KindContact))
	}
	for i := 0; i < counts.Deals; i++ {
		metrics.RecordEntityNormalized(string(core.KindDeal))
	}
	for i := 0; i < counts.Skipped; i++ {
		metrics.RecordEntitySkipped()
	}
}
