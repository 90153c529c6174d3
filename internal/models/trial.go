package models

import "time"

type TrialKind string

const (
	// A burst of draws against a live run
	TrialDraw TrialKind = "draw"
	// A container mutation applied to a live run
	TrialMutate TrialKind = "mutate"
	// Request to the lab HTTP API
	TrialAPI TrialKind = "api"
)

// Trial is a single recorded operation against a run: a draw burst, a
// mutation, or a lab API request.
type Trial struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// The run this trial was executed against. Empty for trials that
	// are not tied to a single run.
	RunID *uint

	// The node that executed the trial.
	Node string

	// Trial of kind "draw", "mutate" or "api".
	Kind TrialKind

	// Engine the trial is attributed to. For draw bursts it's the name
	// of the credited engine, e.g. "indexed" or "mirror".
	Engine string

	// For draws it's the scenario name. For mutations it can be
	// "insert", "erase", "modify", "clear_refill", "create",
	// "drain-erase". For API trials it's the API method name.
	Method string

	// What was asked. Mutation arguments or request body.
	Request string

	// Result is available only for finished trials.
	TrialResult

	// Warm is true if the cumulative index was already fresh when the
	// burst started, so no rebuild was paid.
	Warm bool
}

// TrialResult is available only for finished trials.
type TrialResult struct {
	// IsFinished is true if the trial is fully finished, and no process
	// will update it in the future.
	IsFinished bool

	// What came back. Burst summary or HTTP response body.
	Response string
	// Error message if the trial failed.
	Error string
	// Timestamp when the trial was started.
	StartedAt *time.Time
	// Timestamp when the trial was finished.
	FinishedAt *time.Time
	// IsFailed is true if the trial is failed.
	IsFailed bool
	// Duration is the duration of the trial.
	Duration *time.Duration
}
