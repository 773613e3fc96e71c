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


// Package openai implements the extraction engine over OpenAI-compatible
// chat APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
	"github.com/poiesic/mailgraph/graph"
)

// Engine implements extract.Engine using an LLM for entity extraction and
// a graph driver for persistence.
type Engine struct {
	client llms.Model
	driver graph.Driver
	logger *slog.Logger
}

// extractedEntity is an internal type used for JSON unmarshaling.
// It matches the structure expected of the LLM.
type extractedEntity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// extractedRelationship is an internal type used for JSON unmarshaling.
type extractedRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Fact   string `json:"fact"`
}

// extraction is the wrapper structure for the LLM's JSON response.
type extraction struct {
	Entities      []extractedEntity       `json:"entities"`
	Relationships []extractedRelationship `json:"relationships"`
}

// NewEngine creates an extraction engine. The config is validated and
// normalized before use.
//
// Returns extract.Engine (not *Engine) to enforce abstraction and prevent
// coupling to implementation details.
func NewEngine(config *extract.Config, driver graph.Driver) (extract.Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, fmt.Errorf("extract engine: graph driver is required")
	}

	// Use "none" as token for local OpenAI-compatible services that don't
	// require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.ExtractorHost),
		openai.WithToken("none"),
		openai.WithModel(config.ExtractorModel),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		client: client,
		driver: driver,
		logger: slog.Default().With("component", "extract-engine"),
	}, nil
}

// Submit extracts entities and relationships from the episode and persists
// them to the graph under the episode's tenant key.
func (e *Engine) Submit(ctx context.Context, episode *core.Episode) (*extract.Result, error) {
	if err := core.ValidateEpisode(episode); err != nil {
		return nil, err
	}

	parsed, err := e.extractFromText(ctx, episode.Body)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	result := &extract.Result{EpisodeId: uuid.NewString()}

	if err := e.persistEpisode(ctx, result.EpisodeId, episode); err != nil {
		return nil, fmt.Errorf("persist episode: %w", err)
	}

	// Persist entities first so relationship persistence can resolve names
	// to uuids.
	uuidByName := make(map[string]string, len(parsed.Entities))
	for _, ent := range parsed.Entities {
		if ent.Name == "" {
			continue
		}
		node, err := e.persistEntity(ctx, result.EpisodeId, episode.TenantId, ent)
		if err != nil {
			return nil, fmt.Errorf("persist entity %q: %w", ent.Name, err)
		}
		uuidByName[ent.Name] = node.UUID
		result.Nodes = append(result.Nodes, node)
	}

	for _, rel := range parsed.Relationships {
		srcUUID, okSrc := uuidByName[rel.Source]
		dstUUID, okDst := uuidByName[rel.Target]
		if !okSrc || !okDst {
			e.logger.Debug("dropping relationship with unknown endpoint",
				"source", rel.Source, "target", rel.Target)
			continue
		}
		edge, err := e.persistEdge(ctx, episode.TenantId, srcUUID, dstUUID, rel)
		if err != nil {
			return nil, fmt.Errorf("persist edge %s-[%s]->%s: %w", rel.Source, rel.Type, rel.Target, err)
		}
		result.Edges = append(result.Edges, edge)
	}

	e.logger.Info("episode extracted",
		"episode", episode.Name,
		"entities", len(result.Nodes),
		"edges", len(result.Edges))
	return result, nil
}

// extractFromText runs the LLM and parses its JSON output, retrying the
// parse up to 3 times on malformed responses.
func (e *Engine) extractFromText(ctx context.Context, text string) (*extraction, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf(extractionPromptTemplate, extractionResponseSchema)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(text),
			},
		},
	}

	var result extraction
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return &extraction{}, nil
		}

		responseText := repairJSON(stripFences(response.Choices[0].Content))

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing extraction response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse extraction response after retries", "err", lastErr)
		return nil, lastErr
	}
	return &result, nil
}

const episodeUpsertQuery = `
MERGE (ep:Episode {uuid: $uuid})
ON CREATE SET
    ep.name = $name,
    ep.group_id = $group_id,
    ep.source = $source,
    ep.source_description = $source_description,
    ep.reference_time = $reference_time
RETURN ep.uuid AS uuid`

func (e *Engine) persistEpisode(ctx context.Context, episodeUUID string, episode *core.Episode) error {
	_, err := e.driver.ExecuteQuery(ctx, episodeUpsertQuery, map[string]any{
		"uuid":               episodeUUID,
		"name":               episode.Name,
		"group_id":           episode.TenantId,
		"source":             episode.Source,
		"source_description": episode.SourceDescription,
		"reference_time":     episode.ReferenceTime.UTC().Unix(),
	})
	return err
}

const entityUpsertQuery = `
MERGE (n:Entity {name: $name, group_id: $group_id})
ON CREATE SET
    n.uuid = $uuid,
    n.labels = $labels,
    n.attributes = $attributes,
    n.created_at = $created_at
WITH n
MATCH (ep:Episode {uuid: $episode_uuid})
MERGE (ep)-[:MENTIONS]->(n)
RETURN n.uuid AS uuid`

// persistEntity merges the entity on (name, tenant) so repeated mentions of
// the same name converge on one node, and returns the node with the uuid
// the graph actually holds.
func (e *Engine) persistEntity(ctx context.Context, episodeUUID, tenantKey string, ent extractedEntity) (core.ExtractedEntity, error) {
	node := core.ExtractedEntity{
		UUID:       uuid.NewString(),
		Name:       ent.Name,
		Labels:     []string{"Entity", ent.Type},
		Attributes: ent.Attributes,
	}

	attrsJSON, err := json.Marshal(ent.Attributes)
	if err != nil {
		attrsJSON = []byte("{}")
	}

	rows, err := e.driver.ExecuteQuery(ctx, entityUpsertQuery, map[string]any{
		"name":         ent.Name,
		"group_id":     tenantKey,
		"uuid":         node.UUID,
		"labels":       node.Labels,
		"attributes":   string(attrsJSON),
		"created_at":   time.Now().UTC().Unix(),
		"episode_uuid": episodeUUID,
	})
	if err != nil {
		return core.ExtractedEntity{}, err
	}

	// An ON MATCH hit keeps the original uuid; adopt it so callers link to
	// the stored node, not the candidate.
	if len(rows) > 0 {
		if existing, ok := rows[0]["uuid"].(string); ok && existing != "" {
			node.UUID = existing
		}
	}
	return node, nil
}

const edgeUpsertQuery = `
MATCH (a:Entity {uuid: $source_uuid}), (b:Entity {uuid: $target_uuid})
MERGE (a)-[r:RELATES_TO {type: $type, group_id: $group_id}]->(b)
ON CREATE SET
    r.uuid = $uuid,
    r.fact = $fact
ON MATCH SET
    r.fact = $fact
RETURN r.uuid AS uuid`

func (e *Engine) persistEdge(ctx context.Context, tenantKey, srcUUID, dstUUID string, rel extractedRelationship) (core.ExtractedEdge, error) {
	edge := core.ExtractedEdge{
		UUID:       uuid.NewString(),
		SourceUUID: srcUUID,
		TargetUUID: dstUUID,
		Type:       rel.Type,
		Fact:       rel.Fact,
	}

	rows, err := e.driver.ExecuteQuery(ctx, edgeUpsertQuery, map[string]any{
		"source_uuid": srcUUID,
		"target_uuid": dstUUID,
		"type":        rel.Type,
		"group_id":    tenantKey,
		"uuid":        edge.UUID,
		"fact":        rel.Fact,
	})
	if err != nil {
		return core.ExtractedEdge{}, err
	}
	if len(rows) > 0 {
		if existing, ok := rows[0]["uuid"].(string); ok && existing != "" {
			edge.UUID = existing
		}
	}
	return edge, nil
}

const factSearchQuery = `
MATCH (a:Entity {group_id: $group_id})-[r:RELATES_TO]->(b:Entity {group_id: $group_id})
WHERE toLower(r.fact) CONTAINS toLower($query)
RETURN r.uuid AS uuid, r.fact AS fact, a.name AS source, b.name AS target
LIMIT $limit`

// SearchFacts returns relationships whose fact text contains the query,
// scoped to the tenant.
func (e *Engine) SearchFacts(ctx context.Context, query, tenantKey string, limit int) ([]extract.Fact, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := e.driver.ExecuteQuery(ctx, factSearchQuery, map[string]any{
		"group_id": tenantKey,
		"query":    query,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fact search: %w", err)
	}

	facts := make([]extract.Fact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, extract.Fact{
			UUID:       stringField(row, "uuid"),
			Fact:       stringField(row, "fact"),
			SourceName: stringField(row, "source"),
			TargetName: stringField(row, "target"),
		})
	}
	return facts, nil
}

// Close releases resources held by the engine.
// The graph driver is owned by the caller and is not closed here.
func (e *Engine) Close() error {
	return nil
}

func stringField(row graph.Row, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
