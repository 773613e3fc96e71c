// Package extract defines the extraction-engine abstraction.
//
// An Engine turns an episode of email text into knowledge-graph entities
// and relationships, persisting them as raw extracted nodes. The openai
// subpackage implements the engine over an OpenAI-compatible chat API; the
// mock subpackage provides deterministic test doubles.
//
// Extracted nodes are the engine's own vocabulary. Canonical business
// entities are a separate layer built on top by the normalize package.
package extract
