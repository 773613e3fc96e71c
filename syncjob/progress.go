package syncjob

import (
	"context"
	"log/slog"
	"sync"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

// progressWriter persists job progress updates, dropping writes that would
// not change the stored phase or percent. Persistence failures are logged
// and swallowed; progress is advisory and must never fail a job.
type progressWriter struct {
	jobs   storage.JobRepository
	job    *core.SyncJob
	logger *slog.Logger

	mu   sync.Mutex
	last core.Progress
}

func newProgressWriter(jobs storage.JobRepository, job *core.SyncJob, logger *slog.Logger) *progressWriter {
	return &progressWriter{
		jobs:   jobs,
		job:    job,
		logger: logger,
		last:   job.Progress,
	}
}

// update persists the given progress if it differs from the last write.
func (w *progressWriter) update(ctx context.Context, progress core.Progress) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if progress.Percent > 100 {
		progress.Percent = 100
	}
	if progress == w.last {
		return
	}

	w.job.Progress = progress
	if err := w.jobs.UpdateJob(ctx, w.job); err != nil {
		w.logger.Warn("failed to persist progress",
			"job_id", w.job.Id,
			"phase", progress.Phase,
			"error", err)
		return
	}
	w.last = progress
}

// bumpEmails persists a new processed email count alongside progress.
func (w *progressWriter) bumpEmails(ctx context.Context, count int, progress core.Progress) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if progress.Percent > 100 {
		progress.Percent = 100
	}

	w.job.EmailsProcessed = count
	w.job.Progress = progress
	if err := w.jobs.UpdateJob(ctx, w.job); err != nil {
		w.logger.Warn("failed to persist progress",
			"job_id", w.job.Id,
			"phase", progress.Phase,
			"error", err)
		return
	}
	w.last = progress
}
