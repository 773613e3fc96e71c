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


// Package mailgraph wires the email knowledge-graph pipeline together.
//
// Service is the composition root: given a configuration and a graph
// driver it builds the store, the mail provider, the extraction engine,
// the sync orchestrator, the webhook handler, and the searcher, with
// cascading cleanup when any stage fails. Every dependency can be
// replaced through an option, which is how tests and the seeder swap in
// mocks.
package mailgraph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailgraph/config"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/extract/openai"
	"github.com/poiesic/mailgraph/graph"
	"github.com/poiesic/mailgraph/mail"
	"github.com/poiesic/mailgraph/mail/pipedream"
	"github.com/poiesic/mailgraph/normalize"
	"github.com/poiesic/mailgraph/search"
	"github.com/poiesic/mailgraph/storage"
	"github.com/poiesic/mailgraph/storage/badger"
	"github.com/poiesic/mailgraph/storage/postgres"
	"github.com/poiesic/mailgraph/syncjob"
	"github.com/poiesic/mailgraph/webhook"
)

// Service aggregates the running pipeline components.
type Service struct {
	store        storage.Store
	provider     mail.Provider
	engine       extract.Engine
	embedder     extract.Embedder
	orchestrator *syncjob.Orchestrator
	webhook      *webhook.Handler
	searcher     *search.Searcher
	logger       *slog.Logger
}

// ServiceOption overrides a dependency before wiring.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	store    storage.Store
	provider mail.Provider
	engine   extract.Engine
	embedder extract.Embedder
	logger   *slog.Logger
}

// WithStore uses a pre-built store instead of opening one from config.
func WithStore(store storage.Store) ServiceOption {
	return func(o *serviceOptions) { o.store = store }
}

// WithProvider uses a pre-built mail provider.
func WithProvider(provider mail.Provider) ServiceOption {
	return func(o *serviceOptions) { o.provider = provider }
}

// WithEngine uses a pre-built extraction engine.
func WithEngine(engine extract.Engine) ServiceOption {
	return func(o *serviceOptions) { o.engine = engine }
}

// WithEmbedder uses a pre-built embedder.
func WithEmbedder(embedder extract.Embedder) ServiceOption {
	return func(o *serviceOptions) { o.embedder = embedder }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// NewService builds the pipeline from configuration. The graph driver is
// always supplied by the caller; no concrete driver ships here.
func NewService(cfg *config.Config, driver graph.Driver, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	store := options.store
	if store == nil {
		store, err = OpenStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		provider, err = pipedream.NewClient(&pipedream.Config{
			BaseURL:     cfg.PipedreamBaseURL,
			ProjectId:   cfg.PipedreamProjectId,
			AccessToken: cfg.PipedreamAccessToken,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("mail provider: %w", err)
		}
	}

	extractCfg := extract.NewConfig(
		extract.WithExtractorHost(cfg.ExtractorHost),
		extract.WithExtractorModel(cfg.ExtractorModel),
		extract.WithEmbeddingHost(cfg.EmbeddingHost),
		extract.WithEmbeddingModel(cfg.EmbeddingModel),
	)

	engine := options.engine
	if engine == nil {
		engine, err = openai.NewEngine(extractCfg, driver)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("extraction engine: %w", err)
		}
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(extractCfg)
		if err != nil {
			engine.Close()
			store.Close()
			return nil, fmt.Errorf("embedder: %w", err)
		}
	}

	normalizer := normalize.NewNormalizer(driver, "gmail", logger)

	runner, err := syncjob.NewRunner(store, provider, engine, normalizer,
		syncjob.WithEmbedder(embedder),
		syncjob.WithBatchSize(cfg.BatchSize),
		syncjob.WithEpisodePause(time.Duration(cfg.EpisodePauseSeconds)*time.Second),
		syncjob.WithRetryPolicy(cfg.MaxAttempts,
			time.Duration(cfg.RetryBaseSeconds)*time.Second,
			time.Duration(cfg.RetryCeilingSeconds)*time.Second),
		syncjob.WithTimeLimits(
			time.Duration(cfg.SoftTimeLimitSeconds)*time.Second,
			time.Duration(cfg.HardTimeLimitSeconds)*time.Second),
		syncjob.WithRunnerLogger(logger),
	)
	if err != nil {
		engine.Close()
		store.Close()
		return nil, err
	}

	orchestrator, err := syncjob.NewOrchestrator(store, runner,
		syncjob.WithPoolSize(cfg.SyncWorkers),
		syncjob.WithLogger(logger),
	)
	if err != nil {
		engine.Close()
		store.Close()
		return nil, err
	}

	handler, err := webhook.NewHandler(store, engine, normalizer,
		webhook.WithEmbedder(embedder),
		webhook.WithPoolSize(cfg.WebhookWorkers),
		webhook.WithRetryPolicy(cfg.MaxAttempts,
			time.Duration(cfg.RetryBaseSeconds)*time.Second,
			time.Duration(cfg.RetryCeilingSeconds)*time.Second),
		webhook.WithLogger(logger),
	)
	if err != nil {
		orchestrator.Release()
		engine.Close()
		store.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(store.Documents(), engine, embedder,
		search.WithLogger(logger))
	if err != nil {
		handler.Release()
		orchestrator.Release()
		engine.Close()
		store.Close()
		return nil, err
	}

	return &Service{
		store:        store,
		provider:     provider,
		engine:       engine,
		embedder:     embedder,
		orchestrator: orchestrator,
		webhook:      handler,
		searcher:     searcher,
		logger:       logger,
	}, nil
}

// OpenStore selects the storage backend from configuration: a Postgres
// DSN wins, otherwise the badger path is opened.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	if cfg.PostgresDSN != "" {
		return postgres.NewStore(cfg.PostgresDSN)
	}
	return badger.NewStore(cfg.StoragePath, false)
}

// Store exposes the underlying repositories.
func (s *Service) Store() storage.Store {
	return s.store
}

// Orchestrator exposes sync job admission and control.
func (s *Service) Orchestrator() *syncjob.Orchestrator {
	return s.orchestrator
}

// Webhook exposes the webhook intake handler.
func (s *Service) Webhook() *webhook.Handler {
	return s.webhook
}

// Searcher exposes hybrid retrieval.
func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

// Close stops background work and releases every component.
func (s *Service) Close() error {
	s.webhook.Release()
	s.orchestrator.Release()

	if err := s.engine.Close(); err != nil {
		s.logger.Error("error closing extraction engine", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}
