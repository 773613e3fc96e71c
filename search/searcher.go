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


package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/storage"
)

// DefaultMinSimilarity filters weak document matches.
const DefaultMinSimilarity = 0.5

// verbatimBoost is added to a document's score when it contains every
// query word.
const verbatimBoost = 0.3

// Result is one hybrid query answer.
type Result struct {
	Facts     []extract.Fact
	Documents []*core.DocumentMatch
}

// Searcher runs hybrid fact and document retrieval for a tenant.
type Searcher struct {
	documents     storage.DocumentRepository
	engine        extract.Engine
	embedder      extract.Embedder
	logger        *slog.Logger
	minSimilarity float32
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithMinSimilarity sets the document similarity floor.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	documents storage.DocumentRepository,
	engine extract.Engine,
	embedder extract.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		documents:     documents,
		engine:        engine,
		embedder:      embedder,
		logger:        slog.Default().With("component", "searcher"),
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search answers a query for the given tenant, returning up to maxHits
// facts and maxHits documents. The tenant id is the raw external id; it
// is hashed into the graph's tenant key internally.
func (s *Searcher) Search(ctx context.Context, query, tenantId string, maxHits int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits < 1 {
		maxHits = 10
	}
	tenantKey := core.TenantKey(tenantId)

	// 1. Fact search against the graph
	facts, err := s.engine.SearchFacts(ctx, query, tenantKey, maxHits)
	if err != nil {
		s.logger.Error("fact search failed", "query", query, "error", err)
		return nil, err
	}

	// 2. Similarity search over cached documents
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("query embedding failed", "query", query, "error", err)
		return nil, err
	}
	matches, err := s.documents.FindSimilar(ctx, tenantKey, embedding, s.minSimilarity, maxHits)
	if err != nil {
		s.logger.Error("document search failed", "error", err)
		return nil, err
	}

	// 3. Boost documents that verbatim contain the whole query
	for _, match := range matches {
		text := match.Document.Subject + " " + match.Document.Body
		if containsAllQueryWords(text, query) {
			match.Score += verbatimBoost
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxHits {
		matches = matches[:maxHits]
	}

	s.logger.Debug("search finished",
		"query", query,
		"facts", len(facts),
		"documents", len(matches))
	return &Result{Facts: facts, Documents: matches}, nil
}
