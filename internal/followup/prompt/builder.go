// Package prompt assembles the generation prompt for one deal from its research context.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	// VeryColdDays is the silence after which a call is recommended over email.
	VeryColdDays = 180

	DefaultMaxChars          = 24000
	DefaultEvidencePerSource = 10
)

// ResearchSummaryKeys are the fields requested under research_summary, in display order.
var ResearchSummaryKeys = []string{
	"their_situation",
	"problems_blockers",
	"call_insights",
	"internal_insights",
	"web_insights",
	"applicable_capabilities",
	"similar_insights",
}

var sectionTitles = map[models.SourceType]string{
	models.SourceCRM:  "Recent Notes and Emails (from the CRM)",
	models.SourceChat: "Internal Chat Discussions",
	models.SourceCall: "Call Recording Transcripts",
	models.SourceWeb:  "Recent Company News (from web search)",
}

type Input struct {
	Deal    models.Deal
	Contact *models.Contact
	Company *models.Company
	// DaysSinceLastEmail is nil when no email was ever sent.
	DaysSinceLastEmail *int
	Context            models.Context
}

type Builder struct {
	profile   *Profile
	maxChars  int
	perSource int
}

func NewBuilder(profile *Profile, maxChars, perSource int) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if perSource <= 0 {
		perSource = DefaultEvidencePerSource
	}
	return &Builder{profile: profile, maxChars: maxChars, perSource: perSource}
}

// IsVeryCold treats a deal that never received an email as very cold.
func IsVeryCold(days *int) bool {
	return days == nil || *days > VeryColdDays
}

// LastEmailSubject returns the title of the newest sent email in the CRM evidence.
func LastEmailSubject(c models.Context) string {
	for _, ev := range c.Items(models.SourceCRM) {
		if ev.Kind == models.EvidenceCRMEmail && ev.Relevant && ev.Title != "" {
			return ev.Title
		}
	}
	return ""
}

// Build renders the prompt. When it exceeds the character budget, evidence is dropped from
// the tail of the largest group until it fits; the result is hard-truncated as a last resort.
func (b *Builder) Build(in Input) string {
	evidence := make(map[models.SourceType][]models.Evidence, len(models.SourceOrder))
	for _, src := range models.SourceOrder {
		items := in.Context.Items(src)
		if len(items) > b.perSource {
			items = items[:b.perSource]
		}
		evidence[src] = items
	}

	for {
		out := b.render(in, evidence)
		if len([]rune(out)) <= b.maxChars {
			return out
		}
		largest, n := models.SourceType(""), 0
		for _, src := range models.SourceOrder {
			if len(evidence[src]) > n {
				largest, n = src, len(evidence[src])
			}
		}
		if n == 0 {
			return string([]rune(out)[:b.maxChars])
		}
		evidence[largest] = evidence[largest][:n-1]
	}
}

func (b *Builder) render(in Input, evidence map[models.SourceType][]models.Evidence) string {
	p := b.profile
	var parts []string

	parts = append(parts, "## Role & Purpose\n")
	parts = append(parts, fmt.Sprintf(
		"You are a sales assistant for %s, writing personalised follow-up emails for stalled deals. "+
			"Re-engage the prospect by connecting their specific problems to what %s can do now.",
		p.CompanyName, p.ProductName))

	parts = append(parts, "\n## Deal Context\n")
	parts = append(parts, fmt.Sprintf("**Deal Name:** %s", in.Deal.Name))
	parts = append(parts, fmt.Sprintf("**Stage:** %s", models.StageLabel(in.Deal.Stage)))
	parts = append(parts, fmt.Sprintf("**Days Since Last Contact:** %s", formatDays(in.DaysSinceLastEmail)))

	parts = append(parts, "\n**Contact:**")
	if in.Contact != nil {
		parts = append(parts, fmt.Sprintf("- Name: %s", orUnknown(in.Contact.Name())))
		parts = append(parts, fmt.Sprintf("- Title: %s", orUnknown(in.Contact.JobTitle)))
		parts = append(parts, fmt.Sprintf("- Email: %s", orUnknown(in.Contact.Email)))
	} else {
		parts = append(parts, "- No contact associated with this deal")
	}

	parts = append(parts, "\n**Company:**")
	if in.Company != nil {
		parts = append(parts, fmt.Sprintf("- Name: %s", orUnknown(in.Company.Name)))
		parts = append(parts, fmt.Sprintf("- Industry: %s", orUnknown(in.Company.Industry)))
		parts = append(parts, fmt.Sprintf("- Size: %s", orUnknown(in.Company.Employees)))
	} else {
		parts = append(parts, "- No company associated with this deal")
	}

	if subject := LastEmailSubject(in.Context); subject != "" {
		parts = append(parts, fmt.Sprintf("\n**Last Email Subject:** %s", subject))
	}

	for _, src := range models.SourceOrder {
		parts = append(parts, fmt.Sprintf("\n**%s:**", sectionTitles[src]))
		parts = append(parts, evidenceSection(in.Context, src, evidence[src])...)
	}

	if len(p.Capabilities) > 0 {
		parts = append(parts, fmt.Sprintf("\n## Current %s Capabilities\n", p.ProductName))
		for _, c := range p.Capabilities {
			if c.Description != "" {
				parts = append(parts, fmt.Sprintf("- **%s**: %s", c.Name, c.Description))
			} else {
				parts = append(parts, fmt.Sprintf("- **%s**", c.Name))
			}
		}
	}

	parts = append(parts, "\n## Your Task\n")
	parts = append(parts, "1. Identify the problems or blockers that stalled the deal, using every section above.")
	parts = append(parts, "2. Pick the capabilities or similar customer outcomes that address them.")
	parts = append(parts, fmt.Sprintf(
		"3. Write one follow-up email of at most %d words: a subject referencing their problem, "+
			"one sentence reconnecting context, what has changed, and a single clear ask.", p.MaxEmailWords))

	if len(p.ToneGuidelines) > 0 {
		parts = append(parts, "\n**Tone Guidelines:**")
		for _, g := range p.ToneGuidelines {
			parts = append(parts, "- "+g)
		}
	}

	if IsVeryCold(in.DaysSinceLastEmail) {
		parts = append(parts, fmt.Sprintf(
			"\n**IMPORTANT: This deal has had no email for over %d days. Recommend a call as the primary "+
				"outreach, or acknowledge the long gap directly.**", VeryColdDays))
	}

	parts = append(parts, "\n## Response Format\n")
	parts = append(parts, "Respond with JSON only, in exactly this shape:")
	parts = append(parts, responseShape())

	return strings.Join(parts, "\n")
}

func evidenceSection(c models.Context, src models.SourceType, items []models.Evidence) []string {
	if r, ok := c.Statuses[src]; ok {
		switch r.Status {
		case models.StatusFailed:
			return []string{"Research unavailable for this source."}
		case models.StatusSkippedDisabled:
			return []string{"Not configured."}
		}
	}
	if len(items) == 0 {
		return []string{"Nothing found."}
	}

	lines := make([]string, 0, len(items))
	for _, ev := range items {
		var b strings.Builder
		b.WriteString("- ")
		if ev.Timestamp != nil {
			b.WriteString("[" + ev.Timestamp.Format("2006-01-02") + "] ")
		}
		if ev.Author != "" {
			b.WriteString(ev.Author + ": ")
		}
		if ev.Title != "" && ev.Kind != models.EvidenceCallExcerpt {
			b.WriteString(ev.Title + " | ")
		}
		b.WriteString(ev.Snippet)
		if ev.URL != "" && ev.Source == models.SourceWeb {
			b.WriteString(" (" + ev.URL + ")")
		}
		lines = append(lines, b.String())
	}
	return lines
}

func responseShape() string {
	var fields []string
	for _, k := range ResearchSummaryKeys {
		fields = append(fields, fmt.Sprintf("    %q: \"...\"", k))
	}
	return "{\n" +
		"  \"research_summary\": {\n  " + strings.Join(fields, ",\n  ") + "\n  },\n" +
		"  \"subject\": \"Email subject line referencing their specific problem\",\n" +
		"  \"body\": \"The email body\",\n" +
		"  \"talking_points\": [\"Point to raise if they respond\"],\n" +
		"  \"flags\": [\"Missing information or recommendations for the rep\"]\n" +
		"}"
}

func formatDays(days *int) string {
	if days == nil {
		return "Never (no email on record)"
	}
	return fmt.Sprintf("%d", *days)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
