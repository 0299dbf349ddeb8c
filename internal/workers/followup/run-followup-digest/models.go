package runfollowupdigest

type Input struct {
	Stages             []string `json:"stages,omitempty"`
	StaleThresholdDays *int     `json:"staleThresholdDays,omitempty"`
	DryRun             bool     `json:"dryRun,omitempty"`
}

type Output struct {
	RunID        string `json:"runId"`
	DealsScanned int    `json:"dealsScanned"`
	StaleDeals   int    `json:"staleDeals"`
	Drafted      int    `json:"drafted"`
	Fallback     int    `json:"fallback"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	DigestPath   string `json:"digestPath"`
	DigestSent   bool   `json:"digestSent"`
}
