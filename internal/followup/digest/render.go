// Package digest renders a run report as an HTML digest, keeps a local copy and delivers it.
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/sneurgaonkar/sales-ai-agents/internal/followup/prompt"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

var researchLabels = map[string]string{
	"their_situation":         "Situation",
	"problems_blockers":       "Problems/Blockers",
	"call_insights":           "Call Insights",
	"internal_insights":       "Internal Insights",
	"web_insights":            "Web Intelligence",
	"applicable_capabilities": "Applicable Capabilities",
	"similar_insights":        "Similar Insights",
}

type researchItem struct {
	Label string
	Text  string
}

type card struct {
	DealName      string
	Stage         string
	ContactName   string
	ContactEmail  string
	CompanyName   string
	LastContact   string
	Fallback      bool
	Research      []researchItem
	Flags         []string
	Subject       string
	Body          string
	TalkingPoints []string
}

type problem struct {
	DealName string
	Outcome  string
	Reason   string
}

type view struct {
	GeneratedAt string
	RunID       string
	Counts      models.RunCounts
	Drafted     int
	Cards       []card
	Problems    []problem
}

var page = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
.header { background: #4c51bf; color: #fff; padding: 24px; border-radius: 10px; margin-bottom: 24px; }
.header h1 { margin: 0; font-size: 24px; }
.stats { display: flex; gap: 16px; margin-top: 12px; }
.stat { background: rgba(255,255,255,0.2); padding: 8px 14px; border-radius: 8px; }
.stat-value { font-size: 22px; font-weight: bold; }
.stat-label { font-size: 12px; }
.deal-card { background: #f8f9fa; border-radius: 10px; padding: 22px; margin-bottom: 22px; border-left: 4px solid #4c51bf; }
.deal-name { font-size: 18px; font-weight: 600; }
.deal-stage { background: #4c51bf; color: #fff; padding: 3px 10px; border-radius: 20px; font-size: 12px; margin-left: 8px; }
.deal-meta { color: #666; font-size: 14px; margin: 8px 0 12px; }
.research { background: #e8f4f8; border-radius: 8px; padding: 14px; margin: 12px 0; }
.flags { background: #fff3cd; border-radius: 8px; padding: 14px; margin: 12px 0; color: #856404; font-size: 13px; }
.email { background: #fff; border-radius: 8px; padding: 18px; }
.email-subject { font-weight: 600; border-bottom: 1px solid #eee; padding-bottom: 8px; margin-bottom: 8px; }
.email-body { white-space: pre-wrap; }
.problems { border-top: 1px solid #eee; margin-top: 30px; padding-top: 10px; font-size: 13px; }
.empty { text-align: center; padding: 40px; color: #666; }
.footer { text-align: center; color: #999; font-size: 12px; margin-top: 40px; }
</style>
</head>
<body>
<div class="header">
  <h1>Daily Follow-up Digest</h1>
  <p>Generated on {{.GeneratedAt}}</p>
  <div class="stats">
    <div class="stat"><div class="stat-value">{{.Drafted}}</div><div class="stat-label">Deals Need Follow-up</div></div>
    <div class="stat"><div class="stat-value">{{.Counts.Partial}}</div><div class="stat-label">Partial Research</div></div>
    <div class="stat"><div class="stat-value">{{.Counts.Fallback}}</div><div class="stat-label">Unstructured Drafts</div></div>
    <div class="stat"><div class="stat-value">{{len .Problems}}</div><div class="stat-label">Need Attention</div></div>
  </div>
</div>
{{if not .Cards}}
<div class="empty">
  <h2>All caught up!</h2>
  <p>No deals require follow-up today.</p>
</div>
{{end}}
{{range .Cards}}
<div class="deal-card">
  <div><span class="deal-name">{{.DealName}}</span><span class="deal-stage">{{.Stage}}</span>{{if .Fallback}} <em>unstructured draft</em>{{end}}</div>
  <div class="deal-meta">
    <strong>{{.ContactName}}</strong>{{if .ContactEmail}} ({{.ContactEmail}}){{end}}<br>
    {{.CompanyName}} &middot; Last contact: {{.LastContact}}
  </div>
  {{if .Research}}
  <div class="research">
    {{range .Research}}<div><strong>{{.Label}}:</strong> {{.Text}}</div>{{end}}
  </div>
  {{end}}
  {{if .Flags}}
  <div class="flags"><strong>Flags &amp; Recommendations</strong>
    <ul>{{range .Flags}}<li>{{.}}</li>{{end}}</ul>
  </div>
  {{end}}
  <div class="email">
    <div class="email-subject">Subject: {{.Subject}}</div>
    <div class="email-body">{{.Body}}</div>
    {{if .TalkingPoints}}
    <p><strong>Talking Points (if they respond)</strong></p>
    <ul>{{range .TalkingPoints}}<li>{{.}}</li>{{end}}</ul>
    {{end}}
  </div>
</div>
{{end}}
{{if .Problems}}
<div class="problems">
  <h3>Deals without a draft</h3>
  <ul>{{range .Problems}}<li><strong>{{.DealName}}</strong> ({{.Outcome}}){{if .Reason}}: {{.Reason}}{{end}}</li>{{end}}</ul>
</div>
{{end}}
<div class="footer">
  <p>Run {{.RunID}}. Review each email before sending and personalise as needed.</p>
</div>
</body>
</html>
`))

// Render produces the digest HTML. All report text is escaped.
func Render(report *models.RunReport, generatedAt time.Time) ([]byte, error) {
	v := view{
		GeneratedAt: generatedAt.Format("January 02, 2006 at 03:04 PM"),
		RunID:       report.RunID,
		Counts:      report.Counts(),
	}
	for _, e := range report.Drafted() {
		v.Cards = append(v.Cards, toCard(e))
	}
	v.Drafted = len(v.Cards)
	for _, e := range report.Unresolved() {
		v.Problems = append(v.Problems, problem{
			DealName: dealName(e.Deal),
			Outcome:  string(e.Outcome),
			Reason:   e.Error,
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}
	return buf.Bytes(), nil
}

func toCard(e models.ReportEntry) card {
	c := card{
		DealName:      dealName(e.Deal),
		Stage:         models.StageLabel(e.Deal.Stage),
		ContactName:   "Unknown contact",
		CompanyName:   "Unknown company",
		LastContact:   "never",
		Fallback:      e.Draft.Status == models.DraftFallback,
		Flags:         e.Draft.Flags,
		Subject:       e.Draft.Subject,
		Body:          e.Draft.Body,
		TalkingPoints: e.Draft.TalkingPoints,
	}
	if name := e.Contact.Name(); name != "" {
		c.ContactName = name
	}
	if e.Contact != nil {
		c.ContactEmail = e.Contact.Email
	}
	if name := e.Company.DisplayName(); name != "" {
		c.CompanyName = name
	}
	if e.DaysSinceLastEmail != nil {
		c.LastContact = fmt.Sprintf("%d days ago", *e.DaysSinceLastEmail)
	}
	for _, key := range prompt.ResearchSummaryKeys {
		text := strings.TrimSpace(e.Draft.ResearchSummary[key])
		if text == "" || strings.EqualFold(text, "N/A") {
			continue
		}
		c.Research = append(c.Research, researchItem{Label: researchLabels[key], Text: text})
	}
	return c
}

func dealName(d models.Deal) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
