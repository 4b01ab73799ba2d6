package domain

import "time"

// State is the persisted job state of one feature.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
	// StateEmpty: the last run found nothing to write. Not terminal; the next
	// run queries again because new scenes may have been published.
	StateEmpty State = "empty"
	// StateIneligible is informational. Eligibility is re-evaluated against
	// the current schema on every run.
	StateIneligible State = "ineligible"
)

// Status is the run-level result of processing one feature.
type Status string

const (
	// StatusSkipped: output already present or ledger says there is nothing to do.
	StatusSkipped Status = "skipped"
	// StatusClaimed: another worker or process holds the feature.
	StatusClaimed    Status = "claimed_elsewhere"
	StatusIneligible Status = "ineligible"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	// StatusEmpty: no usable composite or every date was degenerate.
	StatusEmpty Status = "empty"
	// StatusRetryable: a remote call timed out; the next run retries.
	StatusRetryable Status = "retryable"
	StatusCancelled Status = "cancelled"
	// StatusLocalError: the output directory could not be read or written.
	// Nothing is persisted, so the next run tries again.
	StatusLocalError Status = "local_error"
)

// Outcome describes how one feature's job ended.
type Outcome struct {
	RunID      string    `json:"run_id"`
	FeatureID  string    `json:"feature_id"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Images     int       `json:"images"`
	Composites int       `json:"composites"`
	Records    int       `json:"records"`
	Duration   float64   `json:"duration_seconds"`
	FinishedAt time.Time `json:"finished_at"`
}

// State maps the run-level status to the state persisted in the ledger.
// ok is false for statuses that must not touch the ledger.
func (o Outcome) State() (state State, ok bool) {
	switch o.Status {
	case StatusDone:
		return StateDone, true
	case StatusFailed:
		return StateFailed, true
	case StatusEmpty:
		return StateEmpty, true
	case StatusIneligible:
		return StateIneligible, true
	case StatusRetryable:
		return StatePending, true
	default:
		return "", false
	}
}
