// Package fireflies searches recorded call transcripts through the Fireflies GraphQL API.
package fireflies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultBaseURL = "https://api.fireflies.ai/graphql"
	RateLimitKey   = "fireflies"
)

const transcriptsByTitleQuery = `query TranscriptsByTitle($title: String!, $limit: Int) {
  transcripts(title: $title, limit: $limit) {
    id
    title
    date
    duration
    summary {
      overview
      action_items
      keywords
    }
  }
}`

type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	http *httpclient.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []httpclient.Option{
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithBearerToken(cfg.APIKey),
	}
	if cfg.Transport != nil {
		opts = append(opts, httpclient.WithTransport(cfg.Transport))
	}
	return &Client{http: httpclient.NewClient(cfg.Timeout, opts...)}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type transcriptsResponse struct {
	Data struct {
		Transcripts []transcript `json:"transcripts"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type transcript struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Date     json.RawMessage `json:"date"`
	Duration float64         `json:"duration"`
	Summary  *struct {
		Overview    string     `json:"overview"`
		ActionItems stringList `json:"action_items"`
		Keywords    stringList `json:"keywords"`
	} `json:"summary"`
}

// stringList accepts either a JSON array of strings or a newline separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	*l = out
	return nil
}

// GraphQLError reports errors returned in a 200 response body.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "fireflies graphql error: " + strings.Join(e.Messages, "; ")
}

// SearchTranscripts returns transcripts whose title matches query.
func (c *Client) SearchTranscripts(ctx context.Context, query string, limit int) ([]models.Transcript, error) {
	req := graphQLRequest{
		Query: transcriptsByTitleQuery,
		Variables: map[string]interface{}{
			"title": query,
			"limit": limit,
		},
	}

	var resp transcriptsResponse
	if err := c.http.PostJSON(ctx, "", req, &resp); err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	if len(resp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range resp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return nil, gqlErr
	}

	out := make([]models.Transcript, 0, len(resp.Data.Transcripts))
	for _, t := range resp.Data.Transcripts {
		m := models.Transcript{
			ID:              t.ID,
			Title:           t.Title,
			Date:            parseDate(t.Date),
			DurationSeconds: t.Duration,
		}
		if t.Summary != nil {
			m.Overview = t.Summary.Overview
			m.ActionItems = t.Summary.ActionItems
			m.Keywords = t.Summary.Keywords
		}
		out = append(out, m)
	}
	return out, nil
}

// parseDate handles epoch seconds, epoch milliseconds and ISO strings.
func parseDate(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return epoch(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return epoch(n)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

func epoch(n float64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1e12 {
		t = time.UnixMilli(int64(n)).UTC()
	} else {
		t = time.Unix(int64(n), 0).UTC()
	}
	return &t
}
