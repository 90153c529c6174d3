package labapi

import "time"

type AuditReportRequest struct {
	Audit *AuditReport `json:"audit"`
}

// AuditReport is a digest of one run's recent draw trials: what the
// container should have produced against what it did produce.
type AuditReport struct {
	Node     string `json:"node"`
	RunID    uint   `json:"run_id"`
	RunToken string `json:"run_token"`
	Pool     string `json:"pool"`
	Seed     uint64 `json:"seed"`

	// Trials aggregated into this report.
	Trials int `json:"trials"`
	// Draws counted across those trials.
	Draws uint64 `json:"draws"`

	// Expected draw probability per element, from the current weights.
	Expected map[string]float64 `json:"expected"`
	// Observed draw frequency per element.
	Observed map[string]float64 `json:"observed"`

	// MaxDrift is the largest |observed-expected| across elements.
	MaxDrift float64 `json:"max_drift"`
}

type AuditReportResponse struct {
	Audit ReceivedAudit `json:"audit"`
}

type ReceivedAudit struct {
	ID         string    `json:"id"`
	Node       string    `json:"node"`
	RunID      uint      `json:"run_id"`
	Accepted   bool      `json:"accepted"`
	ReceivedAt time.Time `json:"received_at"`
}
