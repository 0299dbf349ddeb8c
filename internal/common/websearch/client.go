// Package websearch queries a Google Custom Search compatible endpoint.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultBaseURL = "https://www.googleapis.com"
	RateLimitKey   = "web"

	// maxResultsPerQuery is the Custom Search API ceiling for num.
	maxResultsPerQuery = 10
)

var whitespace = regexp.MustCompile(`\s+`)

type Config struct {
	BaseURL   string
	APIKey    string
	EngineID  string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	http     *httpclient.Client
	apiKey   string
	engineID string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []httpclient.Option{httpclient.WithBaseURL(cfg.BaseURL)}
	if cfg.Transport != nil {
		opts = append(opts, httpclient.WithTransport(cfg.Transport))
	}
	return &Client{
		http:     httpclient.NewClient(cfg.Timeout, opts...),
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
	}
}

type searchResponse struct {
	Items []struct {
		Link        string `json:"link"`
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		HTMLSnippet string `json:"htmlSnippet"`
		Mime        string `json:"mime"`
	} `json:"items"`
}

// Search returns up to limit HTML results in engine order, deduplicated by URL.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.WebResult, error) {
	query = whitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	if query == "" {
		return nil, nil
	}
	num := limit
	if num <= 0 || num > maxResultsPerQuery {
		num = maxResultsPerQuery
	}

	params := url.Values{}
	params.Add("key", c.apiKey)
	params.Add("cx", c.engineID)
	params.Add("q", query)
	params.Add("num", strconv.Itoa(num))

	var resp searchResponse
	if err := c.http.GetJSON(ctx, "/customsearch/v1", params, &resp); err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	seen := make(map[string]bool)
	var out []models.WebResult
	for _, item := range resp.Items {
		if item.Mime != "" && !strings.Contains(item.Mime, "html") {
			continue
		}
		if item.Link == "" || seen[item.Link] {
			continue
		}
		seen[item.Link] = true

		snippet := item.Snippet
		if snippet == "" {
			snippet = item.HTMLSnippet
		}
		out = append(out, models.WebResult{Title: item.Title, URL: item.Link, Snippet: snippet})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
