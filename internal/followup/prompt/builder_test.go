package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const profileYAML = `
company_name: Northwind
product_name: Northwind Agents
capabilities:
  - name: API Ingestion
    description: Automated API discovery in 24 hours
  - name: Agent Builder
tone_guidelines:
  - Helpful, not salesy
  - Concise
search_topics: [funding, hiring]
`

func testProfile(t *testing.T) *Profile {
	t.Helper()
	p, err := ParseProfile([]byte(profileYAML))
	require.NoError(t, err)
	return p
}

func intPtr(v int) *int { return &v }

func testInput() Input {
	sent := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		Deal:               models.Deal{ID: "d1", Name: "Acme Expansion", Stage: "qualifiedtobuy"},
		Contact:            &models.Contact{FirstName: "Jane", LastName: "Doe", JobTitle: "CTO", Email: "jane@acme.test"},
		Company:            &models.Company{Name: "Acme", Industry: "Logistics"},
		DaysSinceLastEmail: intPtr(30),
		Context: models.Context{
			DealID: "d1",
			Groups: []models.EvidenceGroup{
				{Source: models.SourceCRM, Items: []models.Evidence{
					{Source: models.SourceCRM, Kind: models.EvidenceCRMEmail, Title: "Pricing follow-up", Snippet: "Attached pricing", Relevant: true, Timestamp: &sent},
					{Source: models.SourceCRM, Kind: models.EvidenceCRMNote, Snippet: "Blocked on SSO support"},
				}},
				{Source: models.SourceWeb, Items: []models.Evidence{
					{Source: models.SourceWeb, Kind: models.EvidenceWebFinding, Title: "Acme raises", Snippet: "Series B", URL: "https://n.test/a"},
				}},
			},
			Statuses: map[models.SourceType]models.SourceResult{
				models.SourceCRM:  {Status: models.StatusOK, Count: 2},
				models.SourceChat: {Status: models.StatusFailed, Error: "boom"},
				models.SourceCall: {Status: models.StatusSkippedDisabled},
				models.SourceWeb:  {Status: models.StatusOK, Count: 1},
			},
			Usable: true,
		},
	}
}

func TestParseProfile(t *testing.T) {
	p := testProfile(t)
	assert.Equal(t, "Northwind Agents", p.ProductName)
	assert.Len(t, p.Capabilities, 2)
	assert.Equal(t, []string{"funding", "hiring"}, p.SearchTopics)
	assert.Equal(t, 200, p.MaxEmailWords)

	_, err := ParseProfile([]byte("company_name: x\n"))
	assert.Error(t, err)

	_, err = ParseProfile([]byte("product_name: [unclosed"))
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Northwind", p.CompanyName)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuild_Content(t *testing.T) {
	out := NewBuilder(testProfile(t), 0, 0).Build(testInput())

	assert.Contains(t, out, "sales assistant for Northwind")
	assert.Contains(t, out, "**Stage:** Potential Fit")
	assert.Contains(t, out, "**Days Since Last Contact:** 30")
	assert.Contains(t, out, "- Name: Jane Doe")
	assert.Contains(t, out, "**Last Email Subject:** Pricing follow-up")
	assert.Contains(t, out, "- [2026-08-01] Pricing follow-up | Attached pricing")
	assert.Contains(t, out, "- Blocked on SSO support")
	assert.Contains(t, out, "Series B (https://n.test/a)")
	assert.Contains(t, out, "Research unavailable for this source.")
	assert.Contains(t, out, "Not configured.")
	assert.Contains(t, out, "- **API Ingestion**: Automated API discovery in 24 hours")
	assert.Contains(t, out, "- Helpful, not salesy")
	assert.Contains(t, out, `"applicable_capabilities"`)
	assert.NotContains(t, out, "Recommend a call")
}

func TestBuild_VeryCold(t *testing.T) {
	b := NewBuilder(testProfile(t), 0, 0)

	tests := []struct {
		name string
		days *int
		want bool
	}{
		{"exactly 180", intPtr(180), false},
		{"181", intPtr(181), true},
		{"never emailed", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput()
			in.DaysSinceLastEmail = tt.days
			out := b.Build(in)
			assert.Equal(t, tt.want, strings.Contains(out, "Recommend a call"))
		})
	}
}

func TestBuild_MissingParties(t *testing.T) {
	in := testInput()
	in.Contact = nil
	in.Company = nil

	out := NewBuilder(testProfile(t), 0, 0).Build(in)
	assert.Contains(t, out, "No contact associated with this deal")
	assert.Contains(t, out, "No company associated with this deal")
}

func TestBuild_RespectsCharacterBudget(t *testing.T) {
	in := testInput()
	var notes []models.Evidence
	for i := 0; i < 10; i++ {
		notes = append(notes, models.Evidence{Source: models.SourceCRM, Kind: models.EvidenceCRMNote, Snippet: strings.Repeat("n", 400)})
	}
	in.Context.Groups[0].Items = notes

	b := NewBuilder(testProfile(t), 0, 0)
	full := b.Build(in)

	limit := len([]rune(full)) - 1000
	bounded := NewBuilder(testProfile(t), limit, 0).Build(in)
	assert.LessOrEqual(t, len([]rune(bounded)), limit)
	assert.Less(t, strings.Count(bounded, strings.Repeat("n", 400)), 10)
	assert.Contains(t, bounded, "## Response Format")

	tiny := NewBuilder(testProfile(t), 100, 0).Build(in)
	assert.Len(t, []rune(tiny), 100)
}

func TestBuild_PerSourceCap(t *testing.T) {
	in := testInput()
	var notes []models.Evidence
	for i := 0; i < 5; i++ {
		notes = append(notes, models.Evidence{Source: models.SourceCRM, Kind: models.EvidenceCRMNote, Snippet: "note-x"})
	}
	in.Context.Groups[0].Items = notes

	out := NewBuilder(testProfile(t), 0, 2).Build(in)
	assert.Equal(t, 2, strings.Count(out, "note-x"))
}

func TestLastEmailSubject(t *testing.T) {
	assert.Equal(t, "Pricing follow-up", LastEmailSubject(testInput().Context))
	assert.Equal(t, "", LastEmailSubject(models.Context{}))
}
