// Package history builds, for each clinical episode, the set of diagnosis
// or procedure codes recorded for the same patient within a fixed lookback
// window ending the day before the episode starts. The engine is
// single-threaded and fully in-memory: callers pre-load all inputs, the
// patient index is built once per source table, and every episode is
// answered by a binary-search query against its patient's pre-sorted
// partition.
package history

import (
	"time"
)

// Episode is a clinical event for which a historical feature window is
// computed. Read-only input; the engine never mutates it.
type Episode struct {
	ID        string
	PatientID string
	Start     time.Time
	Type      string // normalized (lowercased) category, "" when absent
}

// Record is a single encounter contributing codes. Inpatient-style
// records have distinct Start/End dates; visit-style (point) records are
// degenerate intervals with Start == End.
type Record struct {
	ID        string
	PatientID string
	Start     time.Time
	End       time.Time
	Codes     []string
	// CodeTimes, when non-nil, is parallel to Codes and carries each
	// code's own occurrence timestamp. A zero entry means the code has
	// none and falls back to the record's Start date.
	CodeTimes []time.Time
}

// OccurrenceTime returns the occurrence timestamp of the i-th code,
// falling back to the record's primary (start) date. The fallback affects
// only the reported occurrence time, never window matching.
func (r *Record) OccurrenceTime(i int) time.Time {
	if r.CodeTimes != nil && i < len(r.CodeTimes) && !r.CodeTimes[i].IsZero() {
		return r.CodeTimes[i]
	}
	return r.Start
}

// Occurrence is one code together with its resolved occurrence time.
type Occurrence struct {
	Code string    `json:"code"`
	Time time.Time `json:"time"`
}

// Result is one output row, keyed by episode id. Codes is always present
// (possibly empty), deduplicated, and sorted lexicographically.
type Result struct {
	EpisodeID   string       `json:"episode_id"`
	PatientID   string       `json:"patient_id"`
	StartDate   time.Time    `json:"start_date"`
	Codes       []string     `json:"codes"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// Stats summarizes one extraction run.
type Stats struct {
	RunID             string        `json:"run_id"`
	Episodes          int           `json:"episodes"`
	EpisodesWithCodes int           `json:"episodes_with_codes"`
	TotalCodes        int           `json:"total_codes"`
	Patients          int           `json:"patients"`
	DroppedRows       map[string]int `json:"dropped_rows"`
	Elapsed           time.Duration `json:"elapsed"`
}
