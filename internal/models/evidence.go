package models

import "time"

type SourceType string

const (
	SourceCRM  SourceType = "crm"
	SourceChat SourceType = "chat"
	SourceCall SourceType = "call"
	SourceWeb  SourceType = "web"
)

// SourceOrder is the fixed grouping order of evidence inside a Context.
var SourceOrder = []SourceType{SourceCRM, SourceChat, SourceCall, SourceWeb}

type EvidenceKind string

const (
	EvidenceCRMNote     EvidenceKind = "crm_note"
	EvidenceCRMEmail    EvidenceKind = "crm_email"
	EvidenceChatMessage EvidenceKind = "chat_message"
	EvidenceCallExcerpt EvidenceKind = "call_excerpt"
	EvidenceWebFinding  EvidenceKind = "web_finding"
)

type Evidence struct {
	Source    SourceType   `json:"source"`
	Kind      EvidenceKind `json:"kind"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Snippet   string       `json:"snippet"`
	Title     string       `json:"title,omitempty"`
	URL       string       `json:"url,omitempty"`
	Author    string       `json:"author,omitempty"`
	Relevant  bool         `json:"relevant"`
}

type SourceStatus string

const (
	StatusOK              SourceStatus = "ok"
	StatusEmpty           SourceStatus = "empty"
	StatusFailed          SourceStatus = "failed"
	StatusSkippedDisabled SourceStatus = "skipped-disabled"
)

type SourceResult struct {
	Status SourceStatus `json:"status"`
	Count  int          `json:"count"`
	Error  string       `json:"error,omitempty"`
}

type EvidenceGroup struct {
	Source SourceType `json:"source"`
	Items  []Evidence `json:"items"`
}

// Context is the merged research bundle for one deal.
type Context struct {
	DealID   string                      `json:"dealId"`
	Groups   []EvidenceGroup             `json:"groups"`
	Statuses map[SourceType]SourceResult `json:"statuses"`
	Usable   bool                        `json:"usable"`
	Failure  string                      `json:"failure,omitempty"`
}

// Items returns the evidence of one source type.
func (c Context) Items(source SourceType) []Evidence {
	for _, g := range c.Groups {
		if g.Source == source {
			return g.Items
		}
	}
	return nil
}

// FailedSources lists source types with status failed, in SourceOrder.
func (c Context) FailedSources() []SourceType {
	var out []SourceType
	for _, s := range SourceOrder {
		if r, ok := c.Statuses[s]; ok && r.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Summary drops the evidence and keeps what a report needs.
func (c Context) Summary() ContextSummary {
	counts := make(map[SourceType]int, len(c.Groups))
	for _, g := range c.Groups {
		counts[g.Source] = len(g.Items)
	}
	statuses := make(map[SourceType]SourceResult, len(c.Statuses))
	for k, v := range c.Statuses {
		statuses[k] = v
	}
	return ContextSummary{
		Usable:         c.Usable,
		Failure:        c.Failure,
		Statuses:       statuses,
		EvidenceCounts: counts,
	}
}

type ContextSummary struct {
	Usable         bool                        `json:"usable"`
	Failure        string                      `json:"failure,omitempty"`
	Statuses       map[SourceType]SourceResult `json:"statuses"`
	EvidenceCounts map[SourceType]int          `json:"evidenceCounts"`
}
