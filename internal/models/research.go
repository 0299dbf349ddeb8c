package models

import "time"

// ChatMessage is one search hit from the team chat workspace.
type ChatMessage struct {
	Text      string     `json:"text"`
	Author    string     `json:"author"`
	Channel   string     `json:"channel"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Permalink string     `json:"permalink,omitempty"`
}

// Transcript is a recorded call with its generated summary.
type Transcript struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Date            *time.Time `json:"date,omitempty"`
	DurationSeconds float64    `json:"durationSeconds,omitempty"`
	Overview        string     `json:"overview,omitempty"`
	ActionItems     []string   `json:"actionItems,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
}

// WebResult is one organic search result, in the engine's relevance order.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
