// Package sources fetches research evidence about a deal from one information source each.
//
// A source never talks to the network itself; it drives a collaborator client whose
// transport is already rate limited. Every collaborator error is returned as
// SOURCE_UNAVAILABLE with the original error as cause.
package sources

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

// DefaultSnippetChars bounds every evidence snippet.
const DefaultSnippetChars = 500

// Request identifies the deal being researched. Contact and Company may be nil.
type Request struct {
	Deal    models.Deal
	Contact *models.Contact
	Company *models.Company
}

func (r Request) companyName() string {
	return strings.TrimSpace(r.Company.DisplayName())
}

func (r Request) contactName() string {
	return strings.TrimSpace(r.Contact.Name())
}

type Source interface {
	Type() models.SourceType
	FetchEvidence(ctx context.Context, req Request) ([]models.Evidence, error)
}

type ActivityReader interface {
	Activities(ctx context.Context, deal models.Deal) ([]models.Activity, error)
}

type ChatSearcher interface {
	SearchMessages(ctx context.Context, query string, channels []string, limit int) ([]models.ChatMessage, error)
}

type TranscriptSearcher interface {
	SearchTranscripts(ctx context.Context, query string, limit int) ([]models.Transcript, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.WebResult, error)
}

func unavailable(source models.SourceType, err error) error {
	return apperrors.NewSourceUnavailableError(string(source), err)
}

var whitespace = regexp.MustCompile(`\s+`)

// HTMLToText extracts visible text from an HTML fragment and collapses whitespace.
// Plain text passes through with whitespace collapsed.
func HTMLToText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br, p, div, li").Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml(" ")
			})
			s = doc.Text()
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// sortNewestFirst orders evidence by timestamp descending; undated items go last.
func sortNewestFirst(items []models.Evidence) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].Timestamp, items[j].Timestamp
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}

func capItems(items []models.Evidence, n int) []models.Evidence {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func containsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
