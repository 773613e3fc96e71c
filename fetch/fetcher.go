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


// Package fetch retrieves a tenant's message history from a mail provider.
//
// Fetching runs in two stages matching the upstream API: listing message
// ids page by page, then loading each message's details individually. A
// failed detail load is logged and skipped so one bad message cannot sink
// a whole sync; listing failures propagate, since losing a page means
// losing an unknown number of messages.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/mail"
)

// DefaultPageSize is the listing page size requested from the provider.
const DefaultPageSize = 100

// detailReportEvery bounds how often detail progress is reported.
const detailReportEvery = 50

// Progress reports fetch progress to the caller.
type Progress struct {
	// Phase is either core.PhaseFetchingIds or core.PhaseFetchingDetails.
	Phase core.Phase

	// Listed is the number of message ids found so far.
	Listed int

	// Fetched is the number of message details loaded so far.
	Fetched int

	// Skipped is the number of messages dropped due to detail failures.
	Skipped int
}

// ProgressFunc receives progress updates. Called once per listing page and
// once per detailReportEvery detail loads, never more often.
type ProgressFunc func(Progress)

// Fetcher pages through a provider mailbox.
type Fetcher struct {
	provider mail.Provider
	pageSize int
	logger   *slog.Logger
}

// NewFetcher creates a fetcher over the given provider. pageSize values
// below 1 fall back to DefaultPageSize.
func NewFetcher(provider mail.Provider, pageSize int, logger *slog.Logger) *Fetcher {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		provider: provider,
		pageSize: pageSize,
		logger:   logger.With("component", "fetcher"),
	}
}

// FetchSince returns every message received at or after the given time,
// with full details. onProgress may be nil.
func (f *Fetcher) FetchSince(ctx context.Context, cred mail.Credential, after time.Time, onProgress ProgressFunc) ([]*core.Message, error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	// Stage 1: collect all message ids.
	var ids []string
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.provider.List(ctx, cred, mail.Query{
			After:      after,
			MaxResults: f.pageSize,
			PageToken:  token,
		})
		if err != nil {
			return nil, fmt.Errorf("list page: %w", err)
		}

		ids = append(ids, page.Ids...)
		report(Progress{Phase: core.PhaseFetchingIds, Listed: len(ids)})

		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	f.logger.Info("listed messages", "count", len(ids))
	if len(ids) == 0 {
		return nil, nil
	}

	// Stage 2: load details one by one, skipping failures.
	messages := make([]*core.Message, 0, len(ids))
	skipped := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := f.provider.Get(ctx, cred, id)
		if err != nil {
			if core.IsTransient(err) {
				return nil, fmt.Errorf("get message %s: %w", id, err)
			}
			skipped++
			f.logger.Warn("skipping message", "id", id, "error", err)
			continue
		}
		if err := core.ValidateMessage(msg); err != nil {
			skipped++
			f.logger.Warn("skipping invalid message", "id", id, "error", err)
			continue
		}
		messages = append(messages, msg)

		if (i+1)%detailReportEvery == 0 || i+1 == len(ids) {
			report(Progress{
				Phase:   core.PhaseFetchingDetails,
				Listed:  len(ids),
				Fetched: len(messages),
				Skipped: skipped,
			})
		}
	}

	f.logger.Info("fetched message details",
		"fetched", len(messages),
		"skipped", skipped)
	return messages, nil
}
