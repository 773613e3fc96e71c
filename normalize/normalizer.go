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


// Package normalize folds raw extracted entities into canonical business
// objects in the knowledge graph.
//
// Canonical nodes (Company, Contact, Deal) carry deterministic natural keys
// so the same real-world entity converges across episodes and sources. Raw
// extracted entities stay untouched; each canonical node links to its
// origin via a CANONICAL_ENTITY edge, and agents traverse that edge to
// reach the extraction engine's relationship graph.
package normalize

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/graph"
)

// Counts reports what one normalization pass produced.
type Counts struct {
	Companies int
	Contacts  int
	Deals     int
	Skipped   int
}

// Normalizer upserts canonical entities derived from extracted nodes.
type Normalizer struct {
	driver graph.Driver
	source string
	logger *slog.Logger
	now    func() time.Time
}

// NewNormalizer creates a normalizer writing through the given driver.
// source tags canonical entities with their provenance ("gmail", "hubspot").
func NewNormalizer(driver graph.Driver, source string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		driver: driver,
		source: source,
		logger: logger.With("component", "normalizer"),
		now:    time.Now,
	}
}

// EnsureIndexes creates the indexes canonical upserts and agent queries
// depend on. Safe to call repeatedly.
func (n *Normalizer) EnsureIndexes(ctx context.Context) error {
	for _, idx := range []struct{ label, property string }{
		{"Company", "domain"},
		{"Contact", "email"},
		{"Deal", "id"},
		{"Entity", "uuid"},
	} {
		if err := n.driver.EnsureIndex(ctx, idx.label, idx.property); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeAndPersist upserts a canonical entity for every recognized
// extracted node. A node failure is logged and counted as skipped; one bad
// node never aborts the pass. Extracted-to-extracted edges are never
// touched.
func (n *Normalizer) NormalizeAndPersist(ctx context.Context, nodes []core.ExtractedEntity, tenantKey string) Counts {
	var counts Counts

	for _, node := range nodes {
		switch DetectKind(node.Labels) {
		case core.KindCompany:
			if err := n.normalizeCompany(ctx, node, tenantKey); err != nil {
				n.logger.Error("normalize company failed", "name", node.Name, "error", err)
				counts.Skipped++
				continue
			}
			counts.Companies++
		case core.KindContact:
			ok, err := n.normalizeContact(ctx, node, tenantKey)
			if err != nil {
				n.logger.Error("normalize contact failed", "name", node.Name, "error", err)
				counts.Skipped++
				continue
			}
			if !ok {
				counts.Skipped++
				continue
			}
			counts.Contacts++
		case core.KindDeal:
			if err := n.normalizeDeal(ctx, node, tenantKey); err != nil {
				n.logger.Error("normalize deal failed", "name", node.Name, "error", err)
				counts.Skipped++
				continue
			}
			counts.Deals++
		default:
			n.logger.Debug("skipping unrecognized entity",
				"name", node.Name, "labels", node.Labels)
			counts.Skipped++
		}
	}

	n.logger.Info("normalization pass complete",
		"companies", counts.Companies,
		"contacts", counts.Contacts,
		"deals", counts.Deals,
		"skipped", counts.Skipped)
	return counts
}

// DetectKind maps extracted labels onto a canonical kind. Generic wrapper
// labels are ignored; the first specific label decides.
func DetectKind(labels []string) core.EntityKind {
	for _, l := range labels {
		if l == "Entity" || l == "Node" {
			continue
		}
		switch core.EntityKind(l) {
		case core.KindCompany, core.KindContact, core.KindDeal:
			return core.EntityKind(l)
		}
		return ""
	}
	return ""
}

const companyUpsertQuery = `
MERGE (c:Company {domain: $domain, group_id: $group_id})
ON CREATE SET
    c.name = $name,
    c.canonical_id = $canonical_id,
    c.source = $source,
    c.created_at = $created_at,
    c.last_updated = $last_updated,
    c.industry = $industry,
    c.location = $location,
    c.description = $description
ON MATCH SET
    c.last_updated = $last_updated,
    c.industry = COALESCE($industry, c.industry),
    c.location = COALESCE($location, c.location),
    c.description = COALESCE($description, c.description)
WITH c
MATCH (e:Entity {uuid: $extracted_uuid})
MERGE (c)-[:CANONICAL_ENTITY]->(e)
RETURN c.canonical_id AS id, c.name AS name`

// canonicalCompany derives the canonical company for an extracted node.
// An extracted "domain" attribute is the authoritative natural key; the
// name heuristic is only a fallback.
func (n *Normalizer) canonicalCompany(node core.ExtractedEntity, tenantKey string) *core.CanonicalEntity {
	domain := ""
	if s := stringAttrPtr(node.Attributes, "domain"); s != nil {
		domain = strings.ToLower(strings.TrimSpace(*s))
	}
	if domain == "" {
		domain = CompanyDomain(node.Name)
	}
	if domain == "" {
		domain = Slugify(node.Name)
	}

	now := n.now().UTC()
	return &core.CanonicalEntity{
		Kind:        core.KindCompany,
		NaturalKey:  domain,
		Name:        CleanCompanyName(node.Name),
		CanonicalId: uuid.NewString(),
		TenantId:    tenantKey,
		Source:      n.source,
		ExtractedId: node.UUID,
		Company: &core.CompanyAttrs{
			Industry:    stringAttrPtr(node.Attributes, "industry"),
			Location:    stringAttrPtr(node.Attributes, "location"),
			Description: stringAttrPtr(node.Attributes, "description"),
		},
		Residual:  residualAttrs(node.Attributes, "domain", "industry", "location", "description"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (n *Normalizer) normalizeCompany(ctx context.Context, node core.ExtractedEntity, tenantKey string) error {
	ent := n.canonicalCompany(node, tenantKey)
	_, err := n.driver.ExecuteQuery(ctx, companyUpsertQuery, map[string]any{
		"domain":         ent.NaturalKey,
		"group_id":       ent.TenantId,
		"name":           ent.Name,
		"canonical_id":   ent.CanonicalId,
		"source":         ent.Source,
		"extracted_uuid": ent.ExtractedId,
		"created_at":     ent.CreatedAt.Unix(),
		"last_updated":   ent.UpdatedAt.Unix(),
		"industry":       optString(ent.Company.Industry),
		"location":       optString(ent.Company.Location),
		"description":    optString(ent.Company.Description),
	})
	if err != nil {
		return err
	}
	n.logResidual(ent)
	return nil
}

const contactUpsertQuery = `
MERGE (p:Contact {email: $email, group_id: $group_id})
ON CREATE SET
    p.name = $name,
    p.canonical_id = $canonical_id,
    p.source = $source,
    p.created_at = $created_at,
    p.last_updated = $last_updated,
    p.title = $title,
    p.phone = $phone
ON MATCH SET
    p.last_updated = $last_updated,
    p.title = COALESCE($title, p.title),
    p.phone = COALESCE($phone, p.phone)
WITH p
MATCH (e:Entity {uuid: $extracted_uuid})
MERGE (p)-[:CANONICAL_ENTITY]->(e)
RETURN p.canonical_id AS id`

// canonicalContact derives the canonical contact, or nil when the node
// carries no email. A contact without a stable identifier cannot be
// deduplicated and is skipped rather than merged on a guess.
func (n *Normalizer) canonicalContact(node core.ExtractedEntity, tenantKey string) *core.CanonicalEntity {
	email := ContactEmail(node.Name, node.Attributes)
	if email == "" {
		return nil
	}

	now := n.now().UTC()
	return &core.CanonicalEntity{
		Kind:        core.KindContact,
		NaturalKey:  email,
		Name:        node.Name,
		CanonicalId: uuid.NewString(),
		TenantId:    tenantKey,
		Source:      n.source,
		ExtractedId: node.UUID,
		Contact: &core.ContactAttrs{
			Email: &email,
			Title: stringAttrPtr(node.Attributes, "title"),
			Phone: stringAttrPtr(node.Attributes, "phone"),
		},
		Residual:  residualAttrs(node.Attributes, "email", "title", "phone"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (n *Normalizer) normalizeContact(ctx context.Context, node core.ExtractedEntity, tenantKey string) (bool, error) {
	ent := n.canonicalContact(node, tenantKey)
	if ent == nil {
		n.logger.Warn("contact has no email, skipping", "name", node.Name)
		return false, nil
	}

	_, err := n.driver.ExecuteQuery(ctx, contactUpsertQuery, map[string]any{
		"email":          ent.NaturalKey,
		"group_id":       ent.TenantId,
		"name":           ent.Name,
		"canonical_id":   ent.CanonicalId,
		"source":         ent.Source,
		"extracted_uuid": ent.ExtractedId,
		"created_at":     ent.CreatedAt.Unix(),
		"last_updated":   ent.UpdatedAt.Unix(),
		"title":          optString(ent.Contact.Title),
		"phone":          optString(ent.Contact.Phone),
	})
	if err != nil {
		return false, err
	}
	n.logResidual(ent)
	return true, nil
}

const dealUpsertQuery = `
MERGE (d:Deal {id: $id, group_id: $group_id})
ON CREATE SET
    d.name = $name,
    d.canonical_id = $canonical_id,
    d.source = $source,
    d.created_at = $created_at,
    d.last_updated = $last_updated,
    d.amount = $amount,
    d.stage = $stage,
    d.products = $products
ON MATCH SET
    d.last_updated = $last_updated,
    d.amount = COALESCE($amount, d.amount),
    d.stage = COALESCE($stage, d.stage),
    d.products = COALESCE($products, d.products)
WITH d
MATCH (e:Entity {uuid: $extracted_uuid})
MERGE (d)-[:CANONICAL_ENTITY]->(e)
RETURN d.canonical_id AS id`

// canonicalDeal derives the canonical deal for an extracted node.
func (n *Normalizer) canonicalDeal(node core.ExtractedEntity, tenantKey string) *core.CanonicalEntity {
	now := n.now().UTC()
	return &core.CanonicalEntity{
		Kind:        core.KindDeal,
		NaturalKey:  DealKey(node.Name, node.UUID, node.Attributes),
		Name:        node.Name,
		CanonicalId: uuid.NewString(),
		TenantId:    tenantKey,
		Source:      n.source,
		ExtractedId: node.UUID,
		Deal: &core.DealAttrs{
			Amount:   int64AttrPtr(node.Attributes, "amount"),
			Stage:    stringAttrPtr(node.Attributes, "stage"),
			Products: stringAttrPtr(node.Attributes, "products"),
		},
		Residual:  residualAttrs(node.Attributes, "hubspot_deal_id", "deal_id", "amount", "stage", "products"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (n *Normalizer) normalizeDeal(ctx context.Context, node core.ExtractedEntity, tenantKey string) error {
	ent := n.canonicalDeal(node, tenantKey)
	_, err := n.driver.ExecuteQuery(ctx, dealUpsertQuery, map[string]any{
		"id":             ent.NaturalKey,
		"group_id":       ent.TenantId,
		"name":           ent.Name,
		"canonical_id":   ent.CanonicalId,
		"source":         ent.Source,
		"extracted_uuid": ent.ExtractedId,
		"created_at":     ent.CreatedAt.Unix(),
		"last_updated":   ent.UpdatedAt.Unix(),
		"amount":         optInt64(ent.Deal.Amount),
		"stage":          optString(ent.Deal.Stage),
		"products":       optString(ent.Deal.Products),
	})
	if err != nil {
		return err
	}
	n.logResidual(ent)
	return nil
}

// logResidual surfaces extracted attributes that have no typed slot.
// They are kept on the canonical record as provenance, never persisted.
func (n *Normalizer) logResidual(ent *core.CanonicalEntity) {
	if len(ent.Residual) > 0 {
		n.logger.Debug("unmapped attributes retained",
			"kind", ent.Kind,
			"name", ent.Name,
			"count", len(ent.Residual))
	}
}

// stringAttrPtr returns the named attribute as a *string, or nil when
// absent or empty.
func stringAttrPtr(attributes map[string]any, name string) *string {
	if s, ok := attributes[name].(string); ok && s != "" {
		return &s
	}
	return nil
}

// int64AttrPtr returns the named attribute as a *int64, tolerating the
// numeric and string forms extraction produces, or nil.
func int64AttrPtr(attributes map[string]any, name string) *int64 {
	v, ok := attributes[name]
	if !ok {
		return nil
	}
	var out int64
	switch x := v.(type) {
	case int64:
		out = x
	case int:
		out = int64(x)
	case float64:
		out = int64(x)
	case string:
		parsed, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil
		}
		out = parsed
	default:
		return nil
	}
	return &out
}

// residualAttrs collects string attributes with no typed slot, or nil.
func residualAttrs(attributes map[string]any, consumed ...string) map[string]string {
	var out map[string]string
	for name, v := range attributes {
		if slices.Contains(consumed, name) {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = s
	}
	return out
}

// optString maps a nil pointer to an untyped nil so the query COALESCE
// keeps the stored value.
func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
