package sources

import (
	"context"
	"strings"
	"time"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultChatCap          = 10
	DefaultChatMaxQueries   = 2
	DefaultChatLookbackDays = 90
)

type ChatOptions struct {
	Channels     []string
	Cap          int
	MaxQueries   int
	LookbackDays int
	SnippetChars int
	Now          func() time.Time
}

// Chat searches internal channels for mentions of the company, the deal and the contact.
type Chat struct {
	searcher ChatSearcher
	opts     ChatOptions
}

func NewChat(searcher ChatSearcher, opts ChatOptions) *Chat {
	if opts.Cap <= 0 {
		opts.Cap = DefaultChatCap
	}
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = DefaultChatMaxQueries
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultChatLookbackDays
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = DefaultSnippetChars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Chat{searcher: searcher, opts: opts}
}

func (s *Chat) Type() models.SourceType { return models.SourceChat }

// searchTerms returns the distinct non-empty names in priority order, limited to MaxQueries.
func (s *Chat) searchTerms(req Request) []string {
	seen := map[string]bool{}
	var terms []string
	for _, t := range []string{req.companyName(), strings.TrimSpace(req.Deal.Name), req.contactName()} {
		key := strings.ToLower(t)
		if t == "" || seen[key] || strings.EqualFold(t, "Unknown Deal") {
			continue
		}
		seen[key] = true
		terms = append(terms, t)
		if len(terms) == s.opts.MaxQueries {
			break
		}
	}
	return terms
}

func quote(term string) string {
	if strings.ContainsAny(term, " \t") {
		return `"` + strings.ReplaceAll(term, `"`, "") + `"`
	}
	return term
}

func (s *Chat) FetchEvidence(ctx context.Context, req Request) ([]models.Evidence, error) {
	terms := s.searchTerms(req)
	if len(terms) == 0 {
		return nil, nil
	}

	cutoff := s.opts.Now().AddDate(0, 0, -s.opts.LookbackDays)
	after := cutoff.Format("2006-01-02")

	seen := map[string]bool{}
	var items []models.Evidence
	for _, term := range terms {
		msgs, err := s.searcher.SearchMessages(ctx, quote(term)+" after:"+after, s.opts.Channels, s.opts.Cap)
		if err != nil {
			return nil, unavailable(models.SourceChat, err)
		}

		for _, m := range msgs {
			if m.Timestamp != nil && m.Timestamp.Before(cutoff) {
				continue
			}
			key := m.Permalink
			if key == "" {
				key = m.Channel + "\x00" + m.Text
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			text := HTMLToText(m.Text)
			if text == "" {
				continue
			}
			title := ""
			if m.Channel != "" {
				title = "#" + m.Channel
			}
			items = append(items, models.Evidence{
				Source:    models.SourceChat,
				Kind:      models.EvidenceChatMessage,
				Timestamp: copyTime(m.Timestamp),
				Snippet:   Truncate(text, s.opts.SnippetChars),
				Title:     title,
				URL:       m.Permalink,
				Author:    m.Author,
				Relevant:  containsFold(m.Text, term),
			})
		}
	}

	sortNewestFirst(items)
	return capItems(items, s.opts.Cap), nil
}
