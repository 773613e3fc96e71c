package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/storage"
)

func TestDocumentPutAndGet(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	docs := store.Documents()

	doc := &core.Document{
		TenantId:  "tenant-a",
		MessageId: "msg-1",
		Subject:   "Q3 renewal",
		Sender:    "Sarah Johnson",
		Body:      "Following up on the renewal.",
		Vector:    []float32{0.1, 0.2, 0.3},
	}
	if err := docs.PutDocuments(ctx, doc); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}
	if doc.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}
	if doc.InsertedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Fatal("Expected timestamps to be set")
	}

	got, err := docs.GetDocument(ctx, doc.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Subject != "Q3 renewal" {
		t.Fatalf("Expected 'Q3 renewal', got '%s'", got.Subject)
	}

	byMsg, err := docs.GetDocumentByMessage(ctx, "tenant-a", "msg-1")
	if err != nil {
		t.Fatalf("Failed to get document by message: %v", err)
	}
	if byMsg.Id != doc.Id {
		t.Fatalf("Expected id %d, got %d", doc.Id, byMsg.Id)
	}
}

func TestDocumentOverwriteKeepsInsertedAt(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	docs := store.Documents()

	first := &core.Document{TenantId: "tenant-a", MessageId: "msg-1", Body: "v1"}
	if err := docs.PutDocuments(ctx, first); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	second := &core.Document{TenantId: "tenant-a", MessageId: "msg-1", Body: "v2"}
	if err := docs.PutDocuments(ctx, second); err != nil {
		t.Fatalf("Failed to overwrite document: %v", err)
	}
	if second.Id != first.Id {
		t.Fatalf("Expected same content-derived id, got %d and %d", first.Id, second.Id)
	}
	if !second.InsertedAt.Equal(first.InsertedAt) {
		t.Fatal("Expected InsertedAt to be preserved on overwrite")
	}

	got, err := docs.GetDocument(ctx, first.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Body != "v2" {
		t.Fatalf("Expected overwritten body, got '%s'", got.Body)
	}
}

func TestDocumentNotFound(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	docs := store.Documents()

	_, err = docs.GetDocument(ctx, core.ID(42))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	_, err = docs.GetDocumentByMessage(ctx, "tenant-a", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDocumentFindSimilar(t *testing.T) {
	store, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	docs := store.Documents()

	items := []*core.Document{
		{TenantId: "tenant-a", MessageId: "msg-1", Body: "exact", Vector: []float32{1, 0, 0}},
		{TenantId: "tenant-a", MessageId: "msg-2", Body: "close", Vector: []float32{0.8, 0.6, 0}},
		{TenantId: "tenant-a", MessageId: "msg-3", Body: "far", Vector: []float32{0, 0, 1}},
		{TenantId: "tenant-a", MessageId: "msg-4", Body: "no vector"},
		{TenantId: "tenant-b", MessageId: "msg-5", Body: "other tenant", Vector: []float32{1, 0, 0}},
	}
	if err := docs.PutDocuments(ctx, items...); err != nil {
		t.Fatalf("Failed to put documents: %v", err)
	}

	matches, err := docs.FindSimilar(ctx, "tenant-a", []float32{1, 0, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("Failed to find similar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Document.MessageId != "msg-1" {
		t.Fatalf("Expected highest score first, got %s", matches[0].Document.MessageId)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatal("Expected descending score order")
	}
	for _, m := range matches {
		if m.Document.TenantId != "tenant-a" {
			t.Fatalf("Leaked document from tenant %s", m.Document.TenantId)
		}
	}

	limited, err := docs.FindSimilar(ctx, "tenant-a", []float32{1, 0, 0}, 0.5, 1)
	if err != nil {
		t.Fatalf("Failed to find similar with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(limited))
	}
}
