package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/mail"
	"github.com/poiesic/mailgraph/mail/mock"
)

func testMessage(id string, ts time.Time) *core.Message {
	return &core.Message{
		Id:           id,
		InternalDate: ts.UnixMilli(),
		Headers:      []core.Header{{Name: "Subject", Value: "s-" + id}},
	}
}

func TestFetchSince_AllPages(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.PageSize = 10

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		provider.AddMessages(testMessage(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Hour)))
	}

	f := NewFetcher(provider, 10, nil)
	messages, err := f.FetchSince(context.Background(), mail.Credential{}, base.Add(-time.Hour), nil)
	require.NoError(t, err)

	assert.Len(t, messages, 25)
	assert.Equal(t, 3, provider.ListCalls(), "three pages of ten")
	assert.Equal(t, 25, provider.GetCalls())
}

func TestFetchSince_RespectsAfterBound(t *testing.T) {
	provider := mock.NewMockProvider()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	provider.AddMessages(
		testMessage("old", base.Add(-48*time.Hour)),
		testMessage("new", base.Add(time.Hour)),
	)

	f := NewFetcher(provider, 100, nil)
	messages, err := f.FetchSince(context.Background(), mail.Credential{}, base, nil)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "new", messages[0].Id)
}

func TestFetchSince_SkipsFailedDetails(t *testing.T) {
	provider := mock.NewMockProvider()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	provider.AddMessages(
		testMessage("ok1", base),
		testMessage("bad", base.Add(time.Hour)),
		testMessage("ok2", base.Add(2*time.Hour)),
	)

	provider.GetFunc = func(ctx context.Context, cred mail.Credential, id string) (*core.Message, error) {
		if id == "bad" {
			return nil, fmt.Errorf("%w: corrupt payload", core.ErrMalformedPayload)
		}
		return testMessage(id, base), nil
	}

	f := NewFetcher(provider, 100, nil)
	messages, err := f.FetchSince(context.Background(), mail.Credential{}, base.Add(-time.Hour), nil)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "ok1", messages[0].Id)
	assert.Equal(t, "ok2", messages[1].Id)
}

func TestFetchSince_PropagatesRateLimit(t *testing.T) {
	provider := mock.NewMockProvider()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	provider.AddMessages(testMessage("m1", base))

	provider.GetFunc = func(ctx context.Context, cred mail.Credential, id string) (*core.Message, error) {
		return nil, fmt.Errorf("proxy: %w", core.ErrRateLimited)
	}

	f := NewFetcher(provider, 100, nil)
	_, err := f.FetchSince(context.Background(), mail.Credential{}, base.Add(-time.Hour), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRateLimited, "transient detail errors must surface for retry")
}

func TestFetchSince_ListErrorPropagates(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.ListFunc = func(ctx context.Context, cred mail.Credential, q mail.Query) (*mail.Page, error) {
		return nil, fmt.Errorf("proxy: %w", core.ErrBadCredentials)
	}

	f := NewFetcher(provider, 100, nil)
	_, err := f.FetchSince(context.Background(), mail.Credential{}, time.Now().Add(-time.Hour), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrBadCredentials)
}

func TestFetchSince_Empty(t *testing.T) {
	provider := mock.NewMockProvider()

	f := NewFetcher(provider, 100, nil)
	messages, err := f.FetchSince(context.Background(), mail.Credential{}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFetchSince_ProgressPhases(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.PageSize = 30
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		provider.AddMessages(testMessage(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	var updates []Progress
	f := NewFetcher(provider, 30, nil)
	_, err := f.FetchSince(context.Background(), mail.Credential{}, base.Add(-time.Hour), func(p Progress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)

	var listingUpdates, detailUpdates int
	for _, u := range updates {
		switch u.Phase {
		case core.PhaseFetchingIds:
			listingUpdates++
		case core.PhaseFetchingDetails:
			detailUpdates++
		}
	}
	assert.Equal(t, 2, listingUpdates, "one update per listing page")
	assert.Equal(t, 2, detailUpdates, "detail updates are batched")

	final := updates[len(updates)-1]
	assert.Equal(t, 60, final.Listed)
	assert.Equal(t, 60, final.Fetched)
}

func TestFetchSince_ContextCanceled(t *testing.T) {
	provider := mock.NewMockProvider()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	provider.AddMessages(testMessage("m1", base))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(provider, 100, nil)
	_, err := f.FetchSince(ctx, mail.Credential{}, base.Add(-time.Hour), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
