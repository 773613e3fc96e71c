package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

var integrationCounter uint64

func integrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("MAILGRAPH_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set MAILGRAPH_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	return dsn
}

func integrationTenant(prefix string) string {
	n := atomic.AddUint64(&integrationCounter, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, os.Getpid(), n)
}

func TestIntegrationEpisodeLedger(t *testing.T) {
	store, err := NewStore(integrationDSN(t))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ledgers := store.Ledgers()
	tenant := integrationTenant("tenant")

	record := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  tenant,
		EpisodeId: "ep-1",
	}
	if err := ledgers.RecordEpisode(ctx, record); err != nil {
		t.Fatalf("Failed to record episode: %v", err)
	}

	err = ledgers.RecordEpisode(ctx, &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  tenant,
		EpisodeId: "ep-2",
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	processed, err := ledgers.IsEpisodeProcessed(ctx, "gmail", "gmail:2025-11-04:1", tenant)
	if err != nil {
		t.Fatalf("Failed to check episode: %v", err)
	}
	if !processed {
		t.Fatal("Expected episode to be processed")
	}
}

func TestIntegrationJobAdmission(t *testing.T) {
	store, err := NewStore(integrationDSN(t))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	jobs := store.Jobs()
	tenant := integrationTenant("tenant")

	first := &core.SyncJob{Id: integrationTenant("job"), TenantId: tenant, Days: 30, Status: core.JobQueued}
	if err := jobs.CreateJob(ctx, first); err != nil {
		t.Fatalf("Failed to create first job: %v", err)
	}

	second := &core.SyncJob{Id: integrationTenant("job"), TenantId: tenant, Days: 7, Status: core.JobQueued}
	err = jobs.CreateJob(ctx, second)
	if !errors.Is(err, storage.ErrActiveJobExists) {
		t.Fatalf("Expected ErrActiveJobExists, got %v", err)
	}

	active, err := jobs.GetActiveJob(ctx, tenant)
	if err != nil {
		t.Fatalf("Failed to get active job: %v", err)
	}
	if active.Id != first.Id {
		t.Fatalf("Expected %s, got %s", first.Id, active.Id)
	}

	first.Status = core.JobCompleted
	if err := jobs.UpdateJob(ctx, first); err != nil {
		t.Fatalf("Failed to complete job: %v", err)
	}

	first.Status = core.JobProcessing
	err = jobs.UpdateJob(ctx, first)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	if err := jobs.CreateJob(ctx, second); err != nil {
		t.Fatalf("Expected admission after completion, got %v", err)
	}
}

func TestIntegrationDocuments(t *testing.T) {
	store, err := NewStore(integrationDSN(t))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	docs := store.Documents()
	tenant := integrationTenant("tenant")

	doc := &core.Document{
		TenantId:  tenant,
		MessageId: "msg-1",
		Subject:   "Q3 renewal",
		Vector:    []float32{1, 0, 0},
	}
	if err := docs.PutDocuments(ctx, doc); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	got, err := docs.GetDocumentByMessage(ctx, tenant, "msg-1")
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Subject != "Q3 renewal" {
		t.Fatalf("Expected 'Q3 renewal', got '%s'", got.Subject)
	}

	matches, err := docs.FindSimilar(ctx, tenant, []float32{1, 0, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("Failed to find similar: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
}
