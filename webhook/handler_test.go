package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	extractmock "github.com/poiesic/mailgraph/extract/mock"
	graphmock "github.com/poiesic/mailgraph/graph/mock"
	"github.com/poiesic/mailgraph/normalize"
	"github.com/poiesic/mailgraph/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "user-123"

type handlerFixture struct {
	store   *badger.Store
	engine  *extractmock.MockEngine
	driver  *graphmock.MockDriver
	handler *Handler
}

func newHandlerFixture(t *testing.T, opts ...HandlerOption) *handlerFixture {
	t.Helper()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := extractmock.NewMockEngine()
	driver := graphmock.NewMockDriver()
	normalizer := normalize.NewNormalizer(driver, "gmail", nil)

	base := []HandlerOption{
		WithRetryPolicy(3, time.Millisecond, 10*time.Millisecond),
		WithEmbedder(extractmock.NewMockEmbedder()),
	}
	handler, err := NewHandler(store, engine, normalizer, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(handler.Release)

	return &handlerFixture{
		store:   store,
		engine:  engine,
		driver:  driver,
		handler: handler,
	}
}

func testPayload(t *testing.T, messageId string) []byte {
	t.Helper()
	body := base64.RawURLEncoding.EncodeToString([]byte("Following up on the renewal for " + messageId))
	raw, err := json.Marshal(map[string]any{
		"external_user_id": testTenant,
		"account_id":       "acc-1",
		"event": map[string]any{
			"id":           messageId,
			"threadId":     "thread-" + messageId,
			"internalDate": "1756600000000",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "From", "value": "Sarah Johnson <sarah@acme.com>"},
					{"name": "To", "value": "buyer@example.com"},
					{"name": "Subject", "value": "Q3 renewal"},
					{"name": "Date", "value": "Sun, 31 Aug 2025 09:00:00 +0000"},
				},
				"body": map[string]string{"data": body},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func TestHandlerQueuesAndProcesses(t *testing.T) {
	f := newHandlerFixture(t)

	result, err := f.handler.Process(context.Background(), testPayload(t, "msg-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)
	assert.Equal(t, "msg-1", result.MessageId)
	assert.Equal(t, testTenant, result.TenantId)

	f.handler.Wait()

	require.Equal(t, 1, f.engine.SubmitCount())
	episode := f.engine.Episodes()[0]
	tenantKey := core.TenantKey(testTenant)
	assert.Equal(t, "gmail", episode.Source)
	assert.Equal(t, "gmail:webhook:msg-1", episode.SourceId)
	assert.Equal(t, tenantKey, episode.TenantId)
	assert.Contains(t, episode.Name, "Q3 renewal")

	ctx := context.Background()
	processed, err := f.store.Ledgers().IsEpisodeProcessed(ctx, episode.Source, episode.SourceId, tenantKey)
	require.NoError(t, err)
	assert.True(t, processed)

	doc, err := f.store.Documents().GetDocumentByMessage(ctx, tenantKey, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "Q3 renewal", doc.Subject)
	assert.Equal(t, "Sarah Johnson", doc.Sender)
	assert.NotEmpty(t, doc.Vector)

	assert.NotEmpty(t, f.driver.Calls())
}

func TestHandlerDuplicateDelivery(t *testing.T) {
	f := newHandlerFixture(t)
	raw := testPayload(t, "msg-1")

	first, err := f.handler.Process(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, StatusQueued, first.Status)
	f.handler.Wait()

	second, err := f.handler.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, "msg-1", second.MessageId)

	f.handler.Wait()
	assert.Equal(t, 1, f.engine.SubmitCount(), "duplicate must not be reprocessed")
}

func TestHandlerConcurrentDeliveries(t *testing.T) {
	f := newHandlerFixture(t, WithPoolSize(4))
	raw := testPayload(t, "msg-1")

	const deliveries = 8
	results := make([]*Result, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.handler.Process(context.Background(), raw)
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()
	f.handler.Wait()

	queued := 0
	for _, result := range results {
		if result.Status == StatusQueued {
			queued++
		}
	}
	assert.Equal(t, 1, queued, "exactly one delivery wins the claim")
	assert.Equal(t, 1, f.engine.SubmitCount())
}

func TestHandlerRejectsInvalidPayloads(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"external_user_id": `},
		{"missing external_user_id", `{"event": {"id": "msg-1"}}`},
		{"empty external_user_id", `{"external_user_id": "", "event": {"id": "msg-1"}}`},
		{"missing event", `{"external_user_id": "user-123"}`},
		{"missing event id", `{"external_user_id": "user-123", "event": {"threadId": "t-1"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.handler.Process(ctx, []byte(tc.raw))
			assert.ErrorIs(t, err, core.ErrMalformedPayload)
		})
	}
	assert.Equal(t, 0, f.engine.SubmitCount())
}

func TestHandlerRetriesTransientErrors(t *testing.T) {
	f := newHandlerFixture(t)

	var mu sync.Mutex
	calls := 0
	f.engine.SubmitFunc = func(ctx context.Context, episode *core.Episode) (*extract.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, core.ErrRateLimited
		}
		return &extract.Result{EpisodeId: "ep-1"}, nil
	}

	result, err := f.handler.Process(context.Background(), testPayload(t, "msg-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)

	f.handler.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestHandlerSkipsEpisodeCoveredByBackfill(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	tenantKey := core.TenantKey(testTenant)

	require.NoError(t, f.store.Ledgers().RecordEpisode(ctx, &core.ProcessedEpisodeRecord{
		Source:    "gmail",
		SourceId:  "gmail:webhook:msg-1",
		TenantId:  tenantKey,
		EpisodeId: "ep-prior",
	}))

	result, err := f.handler.Process(ctx, testPayload(t, "msg-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)

	f.handler.Wait()
	assert.Equal(t, 0, f.engine.SubmitCount(), "ledgered episode is not resubmitted")
}

func TestHandlerMissingInternalDateFallsBack(t *testing.T) {
	f := newHandlerFixture(t)

	raw := []byte(`{
		"external_user_id": "user-123",
		"event": {
			"id": "msg-nodate",
			"payload": {
				"headers": [{"name": "Subject", "value": "Ping"}],
				"body": {"data": "UGluZw"}
			}
		}
	}`)

	result, err := f.handler.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)

	f.handler.Wait()
	require.Equal(t, 1, f.engine.SubmitCount())
	episode := f.engine.Episodes()[0]
	assert.WithinDuration(t, time.Now().UTC(), episode.ReferenceTime, time.Minute)
}
