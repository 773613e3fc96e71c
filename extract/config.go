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


package extract

import (
	"errors"
	"strings"
)

// Config holds configuration for extraction-engine implementations.
type Config struct {
	// ExtractorHost is the base URL for the extraction LLM API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	ExtractorHost string

	// EmbeddingHost is the base URL for the embedding service API.
	EmbeddingHost string

	// ExtractorModel is the model identifier for entity extraction.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	ExtractorModel string

	// EmbeddingModel is the model identifier for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithExtractorHost sets the extraction LLM host URL.
func WithExtractorHost(host string) ConfigOption {
	return func(c *Config) {
		c.ExtractorHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.ExtractorHost = host
		c.EmbeddingHost = host
	}
}

// WithExtractorModel sets the extraction model identifier.
func WithExtractorModel(model string) ConfigOption {
	return func(c *Config) {
		c.ExtractorModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// DefaultConfig returns a Config with defaults for local OpenAI-compatible
// services.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		ExtractorHost:  defaultHost,
		EmbeddingHost:  defaultHost,
		ExtractorModel: "qwen2.5:7b",
		EmbeddingModel: "embeddinggemma",
	}
}

// NewConfig creates a Config with defaults and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures hosts carry the /v1 suffix most OpenAI-compatible APIs
// require (Ollama, LocalAI, vLLM).
func (c *Config) Normalize() {
	if c.ExtractorHost != "" && !strings.HasSuffix(c.ExtractorHost, "/v1") {
		c.ExtractorHost = strings.TrimSuffix(c.ExtractorHost, "/") + "/v1"
	}
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.ExtractorHost == "" {
		return errors.New("extract config: ExtractorHost is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("extract config: EmbeddingHost is required")
	}
	if c.ExtractorModel == "" {
		return errors.New("extract config: ExtractorModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("extract config: EmbeddingModel is required")
	}
	return nil
}
