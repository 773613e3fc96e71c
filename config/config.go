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


// Package config defines the process configuration and its loading rules.
//
// Configuration is layered: defaults, then an optional YAML file named by
// MAILGRAPH_CONFIG, then MAILGRAPH_-prefixed environment variables, each
// layer overriding the previous one.
package config

import (
	"runtime"
)

// Config contains all process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr is the HTTP listen address for the webhook and metrics server.
	Addr string `koanf:"addr"`

	// StoragePath is the badger database directory. Ignored when
	// PostgresDSN is set.
	StoragePath string `koanf:"storage_path"`

	// PostgresDSN selects the Postgres store when non-empty.
	PostgresDSN string `koanf:"postgres_dsn"`

	// PipedreamBaseURL is the Connect API endpoint.
	PipedreamBaseURL string `koanf:"pipedream_base_url"`

	// PipedreamProjectId is the Connect project the accounts live in.
	PipedreamProjectId string `koanf:"pipedream_project_id"`

	// PipedreamAccessToken authenticates against the Connect API.
	PipedreamAccessToken string `koanf:"pipedream_access_token"`

	// ExtractorHost is the base URL of the extraction LLM API.
	ExtractorHost string `koanf:"extractor_host"`

	// ExtractorModel is the model identifier for entity extraction.
	ExtractorModel string `koanf:"extractor_model"`

	// EmbeddingHost is the base URL of the embedding service API.
	EmbeddingHost string `koanf:"embedding_host"`

	// EmbeddingModel is the model identifier for text embeddings.
	EmbeddingModel string `koanf:"embedding_model"`

	// PageSize is the mailbox listing page size.
	PageSize int `koanf:"page_size"`

	// BatchSize caps how many messages a single episode may carry.
	BatchSize int `koanf:"batch_size"`

	// BodyLimit bounds how many bytes of each message body reach an episode.
	BodyLimit int `koanf:"body_limit"`

	// EpisodePauseSeconds is the pause between episode submissions.
	EpisodePauseSeconds int `koanf:"episode_pause_seconds"`

	// MaxAttempts bounds extraction retries per episode.
	MaxAttempts int `koanf:"max_attempts"`

	// RetryBaseSeconds is the initial retry backoff delay.
	RetryBaseSeconds int `koanf:"retry_base_seconds"`

	// RetryCeilingSeconds caps the retry backoff delay.
	RetryCeilingSeconds int `koanf:"retry_ceiling_seconds"`

	// SoftTimeLimitSeconds stops a sync job cleanly after this long.
	SoftTimeLimitSeconds int `koanf:"soft_time_limit_seconds"`

	// HardTimeLimitSeconds is the wall-clock ceiling for a sync job.
	HardTimeLimitSeconds int `koanf:"hard_time_limit_seconds"`

	// SyncWorkers sets the sync job worker pool size.
	SyncWorkers int `koanf:"sync_workers"`

	// WebhookWorkers sets the webhook processing pool size.
	WebhookWorkers int `koanf:"webhook_workers"`
}

// New returns a Config populated with defaults.
func New() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		LogLevel:             "info",
		Addr:                 ":8080",
		StoragePath:          "./data/mailgraph",
		PipedreamBaseURL:     "https://api.pipedream.com",
		ExtractorHost:        "http://localhost:11434/v1",
		ExtractorModel:       "qwen2.5:7b",
		EmbeddingHost:        "http://localhost:11434/v1",
		EmbeddingModel:       "embeddinggemma",
		PageSize:             100,
		BatchSize:            50,
		BodyLimit:            1000,
		EpisodePauseSeconds:  3,
		MaxAttempts:          5,
		RetryBaseSeconds:     60,
		RetryCeilingSeconds:  600,
		SoftTimeLimitSeconds: 840,
		HardTimeLimitSeconds: 900,
		SyncWorkers:          workers,
		WebhookWorkers:       workers,
	}
}
