// Package transcripts searches call transcripts indexed in Elasticsearch.
package transcripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/sneurgaonkar/sales-ai-agents/internal/models"
)

const (
	DefaultIndex = "call-transcripts"
	RateLimitKey = "elasticsearch"
)

// Index expects documents shaped like document below.
type Index struct {
	client *elasticsearch.Client
	index  string
}

func New(client *elasticsearch.Client, index string) *Index {
	if index == "" {
		index = DefaultIndex
	}
	return &Index{client: client, index: index}
}

type document struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Date         *time.Time `json:"date"`
	Duration     float64    `json:"duration"`
	Overview     string     `json:"overview"`
	ActionItems  []string   `json:"action_items"`
	Keywords     []string   `json:"keywords"`
	Participants []string   `json:"participants"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildQuery(query string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":    query,
				"fields":   []string{"title^3", "participants^2", "overview"},
				"type":     "best_fields",
				"operator": "and",
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"date": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

// SearchTranscripts matches query against titles, participants and overviews.
func (x *Index) SearchTranscripts(ctx context.Context, query string, limit int) ([]models.Transcript, error) {
	body, err := json.Marshal(buildQuery(query))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	size := limit
	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("transcript search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("transcript search failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := make([]models.Transcript, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := hit.Source
		id := doc.ID
		if id == "" {
			id = hit.ID
		}
		out = append(out, models.Transcript{
			ID:              id,
			Title:           doc.Title,
			Date:            doc.Date,
			DurationSeconds: doc.Duration,
			Overview:        doc.Overview,
			ActionItems:     doc.ActionItems,
			Keywords:        doc.Keywords,
		})
	}
	return out, nil
}
