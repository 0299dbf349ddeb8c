package models

import "time"

type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomePartial        Outcome = "partial"
	OutcomeFallback       Outcome = "fallback"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkippedTimeout Outcome = "skipped-timeout"
)

type ReportEntry struct {
	Deal               Deal            `json:"deal"`
	Contact            *Contact        `json:"contact,omitempty"`
	Company            *Company        `json:"company,omitempty"`
	DaysSinceLastEmail *int            `json:"daysSinceLastEmail,omitempty"`
	Context            *ContextSummary `json:"context,omitempty"`
	Draft              *DraftEmail     `json:"draft,omitempty"`
	Outcome            Outcome         `json:"outcome"`
	Error              string          `json:"error,omitempty"`
}

// RunReport holds one entry per submitted deal, in submission order, followed by deals the scan
// could not classify.
type RunReport struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Entries    []ReportEntry `json:"entries"`
}

type RunCounts struct {
	Total          int `json:"total"`
	OK             int `json:"ok"`
	Partial        int `json:"partial"`
	Fallback       int `json:"fallback"`
	Failed         int `json:"failed"`
	SkippedTimeout int `json:"skippedTimeout"`
}

func (r *RunReport) Counts() RunCounts {
	c := RunCounts{Total: len(r.Entries)}
	for _, e := range r.Entries {
		switch e.Outcome {
		case OutcomeOK:
			c.OK++
		case OutcomePartial:
			c.Partial++
		case OutcomeFallback:
			c.Fallback++
		case OutcomeFailed:
			c.Failed++
		case OutcomeSkippedTimeout:
			c.SkippedTimeout++
		}
	}
	return c
}

// Drafted returns the entries that carry a usable draft (ok or fallback), preserving order.
func (r *RunReport) Drafted() []ReportEntry {
	var out []ReportEntry
	for _, e := range r.Entries {
		if e.Draft != nil && e.Draft.Status != DraftFailed {
			out = append(out, e)
		}
	}
	return out
}

// Unresolved returns entries without a usable draft.
func (r *RunReport) Unresolved() []ReportEntry {
	var out []ReportEntry
	for _, e := range r.Entries {
		if e.Draft == nil || e.Draft.Status == DraftFailed {
			out = append(out, e)
		}
	}
	return out
}
