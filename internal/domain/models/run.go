package models

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

// Prediction is one filled target cell.
type Prediction struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// RunReport summarizes one pipeline run. It is published to the run-events topic
// and returned by the trigger endpoint.
type RunReport struct {
	RunID        string       `json:"run_id"`
	Status       RunStatus    `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Rows         int          `json:"rows"`
	LatestDate   time.Time    `json:"latest_date"`
	KnownTargets int          `json:"known_targets"`
	Predictions  []Prediction `json:"predictions"`
	Backend      string       `json:"backend"`
	Artifact     string       `json:"artifact"`
	Warnings     int          `json:"warnings"`
	Error        string       `json:"error,omitempty"`
	ErrorCode    string       `json:"error_code,omitempty"`
}

// Duration is the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LastPrediction returns the chronologically last filled target, if any.
func (r *RunReport) LastPrediction() (Prediction, bool) {
	if len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	return r.Predictions[len(r.Predictions)-1], true
}

// RawTable is a source file read as strings: one header row and data records.
type RawTable struct {
	Source  string
	Header  []string
	Records [][]string
}

// ColumnIndex returns the position of name in the header, -1 if absent.
func (r *RawTable) ColumnIndex(name string) int {
	for i, h := range r.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns record i column j, "" when the record is short.
func (r *RawTable) Cell(i, j int) string {
	if i < 0 || i >= len(r.Records) || j < 0 || j >= len(r.Records[i]) {
		return ""
	}
	return r.Records[i][j]
}
