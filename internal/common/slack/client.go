package slack

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	httpclient "github.com/sneurgaonkar/sales-ai-agents/internal/common/http"
	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultBaseURL = "https://slack.com/api"
	RateLimitKey   = "slack"
)

type Config struct {
	BotToken  string
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
		httpclient.WithBearerToken(cfg.BotToken),
	}
	if cfg.Transport != nil {
		opts = append(opts, httpclient.WithTransport(cfg.Transport))
	}
	return &Client{http: httpclient.NewClient(cfg.Timeout, opts...)}
}

// APIError is a response with ok=false, e.g. not_authed or missing_scope.
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "slack api error: " + e.Code
}

type searchResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Messages struct {
		Matches []struct {
			Text     string `json:"text"`
			User     string `json:"user"`
			Username string `json:"username"`
			TS       string `json:"ts"`
			Channel  struct {
				Name string `json:"name"`
			} `json:"channel"`
			Permalink string `json:"permalink"`
		} `json:"matches"`
	} `json:"messages"`
}

// SearchMessages runs search.messages restricted to the given channels, newest first.
func (c *Client) SearchMessages(ctx context.Context, query string, channels []string, limit int) ([]models.ChatMessage, error) {
	full := strings.TrimSpace(query)
	for _, ch := range channels {
		full += " in:#" + strings.TrimPrefix(ch, "#")
	}

	params := url.Values{
		"query":    {strings.TrimSpace(full)},
		"count":    {strconv.Itoa(limit)},
		"sort":     {"timestamp"},
		"sort_dir": {"desc"},
	}

	var resp searchResponse
	if err := c.http.GetJSON(ctx, "/search.messages", params, &resp); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if !resp.OK {
		return nil, &APIError{Code: resp.Error}
	}

	out := make([]models.ChatMessage, 0, len(resp.Messages.Matches))
	for _, m := range resp.Messages.Matches {
		author := m.Username
		if author == "" {
			author = m.User
		}
		if author == "" {
			author = "unknown"
		}
		out = append(out, models.ChatMessage{
			Text:      m.Text,
			Author:    author,
			Channel:   m.Channel.Name,
			Timestamp: parseTS(m.TS),
			Permalink: m.Permalink,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// parseTS converts a Slack "seconds.micros" timestamp.
func parseTS(ts string) *time.Time {
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil || secs <= 0 {
		return nil
	}
	t := time.Unix(0, int64(secs*float64(time.Second))).UTC()
	return &t
}
