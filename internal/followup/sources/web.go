package sources

import (
	"context"
	"strings"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const DefaultWebCap = 5

// Web issues one public search per company, combining its name with the profile's topics.
type Web struct {
	searcher     WebSearcher
	topics       []string
	cap          int
	snippetChars int
}

func NewWeb(searcher WebSearcher, topics []string, cap, snippetChars int) *Web {
	if cap <= 0 {
		cap = DefaultWebCap
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &Web{searcher: searcher, topics: topics, cap: cap, snippetChars: snippetChars}
}

func (s *Web) Type() models.SourceType { return models.SourceWeb }

func (s *Web) query(company string) string {
	parts := append([]string{quote(company)}, s.topics...)
	return strings.Join(parts, " ")
}

func (s *Web) FetchEvidence(ctx context.Context, req Request) ([]models.Evidence, error) {
	company := req.companyName()
	if company == "" {
		return nil, nil
	}

	results, err := s.searcher.Search(ctx, s.query(company), s.cap)
	if err != nil {
		return nil, unavailable(models.SourceWeb, err)
	}

	seen := map[string]bool{}
	items := make([]models.Evidence, 0, len(results))
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true

		snippet := HTMLToText(r.Snippet)
		if snippet == "" {
			snippet = HTMLToText(r.Title)
		}
		if snippet == "" {
			continue
		}
		items = append(items, models.Evidence{
			Source:   models.SourceWeb,
			Kind:     models.EvidenceWebFinding,
			Snippet:  Truncate(snippet, s.snippetChars),
			Title:    HTMLToText(r.Title),
			URL:      r.URL,
			Relevant: containsFold(r.Title+" "+r.Snippet, company),
		})
	}
	// Engine order is relevance order; no re-sorting.
	return capItems(items, s.cap), nil
}
