package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

func TestEpisodeLedgerRecordAndCheck(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ledgers := store.Ledgers()

	processed, err := ledgers.IsEpisodeProcessed(ctx, "gmail", "gmail:2025-11-04:1", "tenant-a")
	if err != nil {
		t.Fatalf("Failed to check episode: %v", err)
	}
	if processed {
		t.Fatal("Expected episode to be unprocessed")
	}

	record := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  "tenant-a",
		EpisodeId: "ep-1",
	}
	if err := ledgers.RecordEpisode(ctx, record); err != nil {
		t.Fatalf("Failed to record episode: %v", err)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("Expected CreatedAt to be set")
	}

	processed, err = ledgers.IsEpisodeProcessed(ctx, "gmail", "gmail:2025-11-04:1", "tenant-a")
	if err != nil {
		t.Fatalf("Failed to check episode: %v", err)
	}
	if !processed {
		t.Fatal("Expected episode to be processed")
	}
}

func TestEpisodeLedgerDuplicate(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ledgers := store.Ledgers()

	record := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  "tenant-a",
		EpisodeId: "ep-1",
	}
	if err := ledgers.RecordEpisode(ctx, record); err != nil {
		t.Fatalf("Failed to record episode: %v", err)
	}

	dup := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  "tenant-a",
		EpisodeId: "ep-2",
	}
	err = ledgers.RecordEpisode(ctx, dup)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEpisodeLedgerTenantScoped(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ledgers := store.Ledgers()

	record := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  "tenant-a",
		EpisodeId: "ep-1",
	}
	if err := ledgers.RecordEpisode(ctx, record); err != nil {
		t.Fatalf("Failed to record episode: %v", err)
	}

	// Same source id under a different tenant is a different row
	other := &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:2025-11-04:1",
		TenantId:  "tenant-b",
		EpisodeId: "ep-2",
	}
	if err := ledgers.RecordEpisode(ctx, other); err != nil {
		t.Fatalf("Failed to record episode for second tenant: %v", err)
	}

	processed, err := ledgers.IsEpisodeProcessed(ctx, "gmail", "gmail:2025-11-04:1", "tenant-b")
	if err != nil {
		t.Fatalf("Failed to check episode: %v", err)
	}
	if !processed {
		t.Fatal("Expected episode to be processed for second tenant")
	}
}

func TestWebhookLedgerClaim(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ledgers := store.Ledgers()

	record := &core.WebhookEventRecord{
		MessageId: "msg-1",
		TenantId:  "tenant-a",
	}
	if err := ledgers.ClaimWebhookEvent(ctx, record); err != nil {
		t.Fatalf("Failed to claim webhook event: %v", err)
	}

	dup := &core.WebhookEventRecord{
		MessageId: "msg-1",
		TenantId:  "tenant-a",
	}
	err = ledgers.ClaimWebhookEvent(ctx, dup)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Different tenant claims independently
	other := &core.WebhookEventRecord{
		MessageId: "msg-1",
		TenantId:  "tenant-b",
	}
	if err := ledgers.ClaimWebhookEvent(ctx, other); err != nil {
		t.Fatalf("Failed to claim for second tenant: %v", err)
	}
}
