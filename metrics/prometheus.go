// Package metrics provides Prometheus metrics for the mailgraph service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the mailgraph service.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Sync job metrics
	jobsStarted   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsCancelled prometheus.Counter
	jobsRejected  prometheus.Counter
	activeJobs    prometheus.Gauge

	// Episode pipeline metrics
	episodesSubmitted  prometheus.Counter
	episodesDuplicate  prometheus.Counter
	episodesFailed     prometheus.Counter
	extractionRetries  prometheus.Counter
	episodeLatency     prometheus.Histogram
	emailsProcessed    prometheus.Counter

	// Normalization metrics
	entitiesNormalized *prometheus.CounterVec
	entitiesSkipped    prometheus.Counter

	// Webhook metrics
	webhookEvents     prometheus.Counter
	webhookDuplicates prometheus.Counter
	webhookRejected   prometheus.Counter

	// Document store metrics
	documentsStored prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry()

func init() {
	globalManager = NewManager(customRegistry)
}

// NewManager creates a metrics manager registered on the given registry.
func NewManager(registry prometheus.Registerer) *Manager {
	m := &Manager{
		namespace: "mailgraph",
		registry:  registry,
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.jobsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_started_total",
		Help:      "Total number of sync jobs started",
	})
	m.jobsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_completed_total",
		Help:      "Total number of sync jobs that finished successfully",
	})
	m.jobsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_failed_total",
		Help:      "Total number of sync jobs that ended in failure",
	})
	m.jobsCancelled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_cancelled_total",
		Help:      "Total number of sync jobs cancelled by users",
	})
	m.jobsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_rejected_total",
		Help:      "Total number of sync requests rejected because a job was already active",
	})
	m.activeJobs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "sync_jobs_active",
		Help:      "Number of sync jobs currently running",
	})

	m.episodesSubmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "episodes_submitted_total",
		Help:      "Total number of episodes accepted by the extraction engine",
	})
	m.episodesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "episodes_duplicate_total",
		Help:      "Total number of episodes skipped because the ledger already had them",
	})
	m.episodesFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "episodes_failed_total",
		Help:      "Total number of episodes dropped after exhausting retries",
	})
	m.extractionRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "extraction_retries_total",
		Help:      "Total number of extraction retry attempts",
	})
	m.episodeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "episode_latency_seconds",
		Help:      "Histogram of per-episode extraction latency in seconds",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	m.emailsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "emails_processed_total",
		Help:      "Total number of emails covered by submitted episodes",
	})

	m.entitiesNormalized = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "entities_normalized_total",
			Help:      "Total number of canonical entities upserted, by kind",
		},
		[]string{"kind"},
	)
	m.entitiesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "entities_skipped_total",
		Help:      "Total number of extracted nodes skipped during normalization",
	})

	m.webhookEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "webhook_events_total",
		Help:      "Total number of webhook events accepted for processing",
	})
	m.webhookDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "webhook_duplicates_total",
		Help:      "Total number of webhook events dropped as duplicates",
	})
	m.webhookRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "webhook_rejected_total",
		Help:      "Total number of webhook payloads rejected by validation",
	})

	m.documentsStored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "documents_stored_total",
		Help:      "Total number of email documents written to the document store",
	})
}

// RecordJobStarted increments the jobs started counter and active gauge.
func RecordJobStarted() {
	globalManager.jobsStarted.Inc()
	globalManager.activeJobs.Inc()
}

// RecordJobCompleted increments the completed counter and decrements the active gauge.
func RecordJobCompleted() {
	globalManager.jobsCompleted.Inc()
	globalManager.activeJobs.Dec()
}

// RecordJobFailed increments the failed counter and decrements the active gauge.
func RecordJobFailed() {
	globalManager.jobsFailed.Inc()
	globalManager.activeJobs.Dec()
}

// RecordJobCancelled increments the cancelled counter and decrements the active gauge.
func RecordJobCancelled() {
	globalManager.jobsCancelled.Inc()
	globalManager.activeJobs.Dec()
}

// RecordJobRejected increments the rejected jobs counter.
func RecordJobRejected() {
	globalManager.jobsRejected.Inc()
}

// RecordEpisodeSubmitted increments the submitted episodes counter.
func RecordEpisodeSubmitted() {
	globalManager.episodesSubmitted.Inc()
}

// RecordEpisodeDuplicate increments the duplicate episodes counter.
func RecordEpisodeDuplicate() {
	globalManager.episodesDuplicate.Inc()
}

// RecordEpisodeFailed increments the failed episodes counter.
func RecordEpisodeFailed() {
	globalManager.episodesFailed.Inc()
}

// RecordExtractionRetry increments the extraction retries counter.
func RecordExtractionRetry() {
	globalManager.extractionRetries.Inc()
}

// RecordEpisodeLatency records per-episode extraction latency in seconds.
func RecordEpisodeLatency(seconds float64) {
	globalManager.episodeLatency.Observe(seconds)
}

// RecordEmailsProcessed adds to the processed emails counter.
func RecordEmailsProcessed(count int) {
	globalManager.emailsProcessed.Add(float64(count))
}

// RecordEntityNormalized increments the normalized entities counter for a kind.
func RecordEntityNormalized(kind string) {
	globalManager.entitiesNormalized.WithLabelValues(kind).Inc()
}

// RecordEntitySkipped increments the skipped entities counter.
func RecordEntitySkipped() {
	globalManager.entitiesSkipped.Inc()
}

// RecordWebhookEvent increments the accepted webhook events counter.
func RecordWebhookEvent() {
	globalManager.webhookEvents.Inc()
}

// RecordWebhookDuplicate increments the duplicate webhook events counter.
func RecordWebhookDuplicate() {
	globalManager.webhookDuplicates.Inc()
}

// RecordWebhookRejected increments the rejected webhook payloads counter.
func RecordWebhookRejected() {
	globalManager.webhookRejected.Inc()
}

// RecordDocumentsStored adds to the stored documents counter.
func RecordDocumentsStored(count int) {
	globalManager.documentsStored.Add(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
