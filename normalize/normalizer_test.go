package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/graph"
	"github.com/poiesic/mailgraph/graph/mock"
)

const testTenant = "a1b2c3d4e5f60718"

func TestCompanyDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already a domain", input: "acme.com", want: "acme.com"},
		{name: "uppercase domain", input: "Acme.COM", want: "acme.com"},
		{name: "name with suffix", input: "Acme Corporation", want: "acme.com"},
		{name: "llc suffix in first word", input: "Acmellc Holdings", want: "acme.com"},
		{name: "plain name", input: "Initech Systems", want: "initech.com"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompanyDomain(tt.input))
		})
	}
}

func TestCompanyDomain_ConvergesNameAndDomain(t *testing.T) {
	// The whole point of the heuristic: both spellings of the same company
	// land on one key.
	assert.Equal(t, CompanyDomain("acme.com"), CompanyDomain("Acme Corporation"))
}

func TestCleanCompanyName(t *testing.T) {
	assert.Equal(t, "Acme Corporation", CleanCompanyName("Acme Corporation"))
	assert.Equal(t, "acme", CleanCompanyName("acme.com"))
	assert.Equal(t, "sales", CleanCompanyName("sales@acme.com"))
}

func TestContactEmail(t *testing.T) {
	tests := []struct {
		name  string
		node  string
		attrs map[string]any
		want  string
	}{
		{
			name:  "from attribute",
			node:  "Alice Smith",
			attrs: map[string]any{"email": "alice@example.com"},
			want:  "alice@example.com",
		},
		{
			name: "from name",
			node: "Bob Jones (bob.jones@example.co.uk)",
			want: "bob.jones@example.co.uk",
		},
		{
			name:  "attribute wins over name",
			node:  "carol@old.com",
			attrs: map[string]any{"email": "carol@new.com"},
			want:  "carol@new.com",
		},
		{
			name: "no email anywhere",
			node: "Dave",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContactEmail(tt.node, tt.attrs))
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "q4-enterprise-deal", Slugify("Q4 Enterprise Deal"))
	assert.Equal(t, "a-b-c", Slugify("  A&B / C!  "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestDealKey(t *testing.T) {
	tests := []struct {
		name  string
		deal  string
		uuid  string
		attrs map[string]any
		want  string
	}{
		{
			name:  "hubspot id wins",
			deal:  "Q4 Deal",
			uuid:  "u-1",
			attrs: map[string]any{"hubspot_deal_id": "hs-42", "deal_id": "d-9"},
			want:  "hs-42",
		},
		{
			name:  "generic crm id",
			deal:  "Q4 Deal",
			uuid:  "u-1",
			attrs: map[string]any{"deal_id": "d-9"},
			want:  "d-9",
		},
		{
			name: "slug fallback",
			deal: "Q4 Enterprise Deal",
			uuid: "u-1",
			want: "q4-enterprise-deal",
		},
		{
			name: "uuid when slug empty",
			deal: "???",
			uuid: "u-1",
			want: "u-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DealKey(tt.deal, tt.uuid, tt.attrs))
		})
	}
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, core.KindCompany, DetectKind([]string{"Entity", "Company"}))
	assert.Equal(t, core.KindContact, DetectKind([]string{"Contact"}))
	assert.Equal(t, core.EntityKind(""), DetectKind([]string{"Entity"}))
	assert.Equal(t, core.EntityKind(""), DetectKind([]string{"Entity", "Project"}))
	assert.Equal(t, core.EntityKind(""), DetectKind(nil))
}

func TestNormalizeAndPersist_Counts(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	nodes := []core.ExtractedEntity{
		{UUID: "n1", Name: "Acme Corporation", Labels: []string{"Entity", "Company"}},
		{UUID: "n2", Name: "Alice", Labels: []string{"Entity", "Contact"}, Attributes: map[string]any{"email": "alice@acme.com"}},
		{UUID: "n3", Name: "Bob NoEmail", Labels: []string{"Entity", "Contact"}},
		{UUID: "n4", Name: "Q4 Renewal", Labels: []string{"Entity", "Deal"}},
		{UUID: "n5", Name: "Mystery", Labels: []string{"Entity", "Project"}},
	}

	counts := n.NormalizeAndPersist(context.Background(), nodes, testTenant)

	assert.Equal(t, 1, counts.Companies)
	assert.Equal(t, 1, counts.Contacts)
	assert.Equal(t, 1, counts.Deals)
	assert.Equal(t, 2, counts.Skipped, "contact without email and unknown kind")
	assert.Len(t, driver.Calls(), 3, "skipped nodes issue no queries")
}

func TestNormalizeAndPersist_CompanyQuery(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	n.NormalizeAndPersist(context.Background(), []core.ExtractedEntity{
		{
			UUID:   "n1",
			Name:   "Acme Corporation",
			Labels: []string{"Entity", "Company"},
			Attributes: map[string]any{
				"industry": "manufacturing",
			},
		},
	}, testTenant)

	calls := driver.Calls()
	require.Len(t, calls, 1)

	q := calls[0].Query
	assert.Contains(t, q, "MERGE (c:Company {domain: $domain, group_id: $group_id})")
	assert.Contains(t, q, "COALESCE($industry, c.industry)")
	assert.Contains(t, q, "MERGE (c)-[:CANONICAL_ENTITY]->(e)")

	p := calls[0].Params
	assert.Equal(t, "acme.com", p["domain"])
	assert.Equal(t, testTenant, p["group_id"])
	assert.Equal(t, "Acme Corporation", p["name"])
	assert.Equal(t, "gmail", p["source"])
	assert.Equal(t, "n1", p["extracted_uuid"])
	assert.Equal(t, "manufacturing", p["industry"])
	assert.Nil(t, p["location"], "absent attributes pass nil so COALESCE keeps existing values")
	assert.NotEmpty(t, p["canonical_id"])
}

func TestNormalizeAndPersist_DomainAttributeWins(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	n.NormalizeAndPersist(context.Background(), []core.ExtractedEntity{
		{
			UUID:   "n1",
			Name:   "Acme Corporation",
			Labels: []string{"Entity", "Company"},
			Attributes: map[string]any{
				"domain": " Acme-Widgets.IO ",
			},
		},
	}, testTenant)

	calls := driver.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "acme-widgets.io", calls[0].Params["domain"],
		"an extracted domain beats the name heuristic")
}

func TestCanonicalEntityTypedAttributes(t *testing.T) {
	n := NewNormalizer(mock.NewMockDriver(), "gmail", nil)

	company := n.canonicalCompany(core.ExtractedEntity{
		UUID:   "n1",
		Name:   "Acme Corporation",
		Labels: []string{"Entity", "Company"},
		Attributes: map[string]any{
			"domain":   "acme-widgets.io",
			"industry": "manufacturing",
			"ticker":   "ACME",
		},
	}, testTenant)
	assert.Equal(t, core.KindCompany, company.Kind)
	assert.Equal(t, "acme-widgets.io", company.NaturalKey)
	require.NotNil(t, company.Company)
	require.NotNil(t, company.Company.Industry)
	assert.Equal(t, "manufacturing", *company.Company.Industry)
	assert.Nil(t, company.Company.Location)
	assert.Equal(t, map[string]string{"ticker": "ACME"}, company.Residual,
		"attributes without a typed slot land in the residual map")
	assert.NotEmpty(t, company.CanonicalId)

	contact := n.canonicalContact(core.ExtractedEntity{Name: "Dave"}, testTenant)
	assert.Nil(t, contact, "a contact without an email has no canonical form")

	deal := n.canonicalDeal(core.ExtractedEntity{
		UUID:       "n2",
		Name:       "Q4 Renewal",
		Attributes: map[string]any{"amount": "125000"},
	}, testTenant)
	assert.Equal(t, "q4-renewal", deal.NaturalKey)
	require.NotNil(t, deal.Deal.Amount)
	assert.Equal(t, int64(125000), *deal.Deal.Amount)
}

func TestNormalizeAndPersist_SameCompanyConverges(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	n.NormalizeAndPersist(context.Background(), []core.ExtractedEntity{
		{UUID: "n1", Name: "Acme Corporation", Labels: []string{"Entity", "Company"}},
		{UUID: "n2", Name: "acme.com", Labels: []string{"Entity", "Company"}},
	}, testTenant)

	calls := driver.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Params["domain"], calls[1].Params["domain"],
		"both spellings merge on the same key")
}

func TestNormalizeAndPersist_DealQuery(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	n.NormalizeAndPersist(context.Background(), []core.ExtractedEntity{
		{
			UUID:   "n9",
			Name:   "Q4 Enterprise Renewal",
			Labels: []string{"Entity", "Deal"},
			Attributes: map[string]any{
				"amount": float64(125000),
				"stage":  "negotiation",
			},
		},
	}, testTenant)

	calls := driver.Calls()
	require.Len(t, calls, 1)

	p := calls[0].Params
	assert.Equal(t, "q4-enterprise-renewal", p["id"])
	assert.Equal(t, int64(125000), p["amount"])
	assert.Equal(t, "negotiation", p["stage"])
	assert.Nil(t, p["products"])
}

func TestNormalizeAndPersist_DriverErrorCountsAsSkipped(t *testing.T) {
	driver := mock.NewMockDriver()
	driver.ExecuteQueryFunc = func(ctx context.Context, query string, params map[string]any) ([]graph.Row, error) {
		if strings.Contains(query, ":Company") {
			return nil, errors.New("connection reset")
		}
		return nil, nil
	}
	n := NewNormalizer(driver, "gmail", nil)

	counts := n.NormalizeAndPersist(context.Background(), []core.ExtractedEntity{
		{UUID: "n1", Name: "Acme", Labels: []string{"Entity", "Company"}},
		{UUID: "n2", Name: "Alice", Labels: []string{"Entity", "Contact"}, Attributes: map[string]any{"email": "a@b.com"}},
	}, testTenant)

	assert.Equal(t, 0, counts.Companies)
	assert.Equal(t, 1, counts.Contacts)
	assert.Equal(t, 1, counts.Skipped)
}

func TestEnsureIndexes(t *testing.T) {
	driver := mock.NewMockDriver()
	n := NewNormalizer(driver, "gmail", nil)

	require.NoError(t, n.EnsureIndexes(context.Background()))
	assert.Equal(t, []string{"Company.domain", "Contact.email", "Deal.id", "Entity.uuid"}, driver.Indexes())
}
