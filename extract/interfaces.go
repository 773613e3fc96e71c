package extract

import (
	"context"

	"github.com/poiesic/mailgraph/core"
)

// Result is the outcome of one episode submission.
type Result struct {
	// EpisodeId is the engine's id for the stored episode node.
	EpisodeId string

	// Nodes are the entities extracted from the episode body.
	Nodes []core.ExtractedEntity

	// Edges are the relationships extracted between those entities.
	Edges []core.ExtractedEdge
}

// Fact is one relationship hit from a fact search.
type Fact struct {
	UUID       string
	Fact       string
	SourceName string
	TargetName string
}

// Engine extracts entities from episodes and persists them to the graph.
// Implementations must be thread-safe for concurrent use.
type Engine interface {
	// Submit extracts entities and relationships from the episode and
	// persists them under the episode's tenant key.
	Submit(ctx context.Context, episode *core.Episode) (*Result, error)

	// SearchFacts returns relationships whose fact text matches the query,
	// scoped to the tenant.
	SearchFacts(ctx context.Context, query, tenantKey string, limit int) ([]Fact, error)

	// Close releases resources held by the engine.
	Close() error
}

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in a batch.
	// The returned slice matches the order of the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
