package sources

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultCallCap = 5

	maxActionItems = 5
	maxKeywords    = 10
)

// Call searches call transcripts by company name, falling back to the contact name.
type Call struct {
	searcher     TranscriptSearcher
	cap          int
	snippetChars int
}

func NewCall(searcher TranscriptSearcher, cap, snippetChars int) *Call {
	if cap <= 0 {
		cap = DefaultCallCap
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &Call{searcher: searcher, cap: cap, snippetChars: snippetChars}
}

func (s *Call) Type() models.SourceType { return models.SourceCall }

func (s *Call) FetchEvidence(ctx context.Context, req Request) ([]models.Evidence, error) {
	var queries []string
	if name := req.companyName(); name != "" {
		queries = append(queries, name)
	}
	if name := req.contactName(); name != "" {
		queries = append(queries, name)
	}

	for _, q := range queries {
		transcripts, err := s.searcher.SearchTranscripts(ctx, q, s.cap)
		if err != nil {
			return nil, unavailable(models.SourceCall, err)
		}
		if len(transcripts) == 0 {
			continue
		}

		items := make([]models.Evidence, 0, len(transcripts))
		for _, t := range transcripts {
			items = append(items, models.Evidence{
				Source:    models.SourceCall,
				Kind:      models.EvidenceCallExcerpt,
				Timestamp: copyTime(t.Date),
				Snippet:   s.excerpt(t),
				Title:     t.Title,
				Relevant:  containsFold(t.Title, q),
			})
		}
		sortNewestFirst(items)
		return capItems(items, s.cap), nil
	}
	return nil, nil
}

func (s *Call) excerpt(t models.Transcript) string {
	var b strings.Builder

	title := t.Title
	if title == "" {
		title = "Untitled Meeting"
	}
	b.WriteString(title)
	if t.DurationSeconds > 0 {
		fmt.Fprintf(&b, " (%d mins)", int(math.Round(t.DurationSeconds/60)))
	}

	overview := HTMLToText(t.Overview)
	if overview == "" {
		overview = "No summary available"
	}
	b.WriteString("\nSummary: ")
	b.WriteString(Truncate(overview, s.snippetChars))

	if items := firstN(t.ActionItems, maxActionItems); len(items) > 0 {
		b.WriteString("\nAction items: ")
		b.WriteString(strings.Join(items, "; "))
	}
	if kw := firstN(t.Keywords, maxKeywords); len(kw) > 0 {
		b.WriteString("\nKeywords: ")
		b.WriteString(strings.Join(kw, ", "))
	}
	return b.String()
}

func firstN(in []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == n {
			break
		}
	}
	return out
}
