package sources

import (
	"context"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const DefaultCRMCap = 10

// CRM turns the deal's notes and emails into evidence. It is the one required source.
type CRM struct {
	reader       ActivityReader
	cap          int
	snippetChars int
}

func NewCRM(reader ActivityReader, cap, snippetChars int) *CRM {
	if cap <= 0 {
		cap = DefaultCRMCap
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &CRM{reader: reader, cap: cap, snippetChars: snippetChars}
}

func (s *CRM) Type() models.SourceType { return models.SourceCRM }

func (s *CRM) FetchEvidence(ctx context.Context, req Request) ([]models.Evidence, error) {
	activities, err := s.reader.Activities(ctx, req.Deal)
	if err != nil {
		return nil, unavailable(models.SourceCRM, err)
	}

	items := make([]models.Evidence, 0, len(activities))
	for _, a := range activities {
		text := HTMLToText(a.Body)
		ev := models.Evidence{
			Source:    models.SourceCRM,
			Timestamp: copyTime(a.Timestamp),
		}
		switch a.Kind {
		case models.ActivityEmail:
			ev.Kind = models.EvidenceCRMEmail
			ev.Title = a.Subject
			ev.Relevant = a.IsSentEmail()
			if text == "" {
				text = a.Subject
			}
		default:
			ev.Kind = models.EvidenceCRMNote
		}
		if text == "" {
			continue
		}
		ev.Snippet = Truncate(text, s.snippetChars)
		items = append(items, ev)
	}

	sortNewestFirst(items)
	return capItems(items, s.cap), nil
}
