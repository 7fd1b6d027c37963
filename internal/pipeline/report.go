package pipeline

// ReportItem names one skipped or failed unit and why. Nothing is ever
// dropped silently.
type ReportItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report is the structured outcome every phase returns, even on partial
// failure.
type Report struct {
	Phase   Phase          `json:"phase"`
	Counts  map[string]int `json:"counts"`
	Skipped []ReportItem   `json:"skipped,omitempty"`
	Failed  []ReportItem   `json:"failed,omitempty"`
}

func newReport(phase Phase) *Report {
	return &Report{Phase: phase, Counts: map[string]int{}}
}

func (r *Report) skip(name, reason string) {
	r.Skipped = append(r.Skipped, ReportItem{Name: name, Reason: reason})
}

func (r *Report) fail(name, reason string) {
	r.Failed = append(r.Failed, ReportItem{Name: name, Reason: reason})
}
