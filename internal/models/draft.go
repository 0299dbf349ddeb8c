package models

type DraftStatus string

const (
	DraftOK       DraftStatus = "ok"
	DraftFallback DraftStatus = "fallback"
	DraftFailed   DraftStatus = "failed"
)

// DraftEmail is the structured follow-up produced for one deal.
type DraftEmail struct {
	DealID          string            `json:"dealId"`
	Subject         string            `json:"subject"`
	Body            string            `json:"body"`
	TalkingPoints   []string          `json:"talkingPoints"`
	Flags           []string          `json:"flags"`
	ResearchSummary map[string]string `json:"researchSummary,omitempty"`
	Status          DraftStatus       `json:"status"`
	Attempts        int               `json:"attempts"`
}
