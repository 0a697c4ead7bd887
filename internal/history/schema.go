package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meds/historian/internal/source"
)

// TableSpec maps an encounter table's columns onto the engine's record
// fields. Codes is a fixed, ordered schema of candidate code columns; any
// of them may be absent from a given table. CodeDates optionally declares
// per-slot occurrence-date columns parallel to Codes.
type TableSpec struct {
	RecordID  string
	PatientID string
	Start     string
	End       string // optional; absent column degrades to End = Start
	Codes     []string
	CodeDates []string
}

// EpisodeSpec maps an episode table's columns onto Episode fields.
type EpisodeSpec struct {
	EpisodeID string
	PatientID string
	Start     string
	Type      string // optional
}

// numberedColumns builds a wide optional-column schema like
// DXCODE1..DXCODE25.
func numberedColumns(prefix string, n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return cols
}

// DefaultInpatientDxSpec describes the inpatient (DAD-style) diagnosis
// table: admit/discharge interval plus 25 diagnosis code slots.
func DefaultInpatientDxSpec() TableSpec {
	return TableSpec{
		RecordID:  "episode_order",
		PatientID: "PATID",
		Start:     "ADMITDATE_DT",
		End:       "DISDATE_DT",
		Codes:     numberedColumns("DXCODE", 25),
	}
}

// DefaultEDDxSpec describes the emergency (ED-style) diagnosis table: a
// single visit date plus 10 diagnosis code slots.
func DefaultEDDxSpec() TableSpec {
	return TableSpec{
		RecordID:  "episode_order",
		PatientID: "PATID",
		Start:     "VISIT_DATE_DT",
		Codes:     numberedColumns("DXCODE", 10),
	}
}

// DefaultProcSpec describes the inpatient procedure table: the admit/
// discharge interval, 20 procedure code slots, and their per-slot
// occurrence dates.
func DefaultProcSpec() TableSpec {
	return TableSpec{
		RecordID:  "episode_order",
		PatientID: "PATID",
		Start:     "ADMITDATE_DT",
		End:       "DISDATE_DT",
		Codes:     numberedColumns("PROCCODE", 20),
		CodeDates: numberedColumns("PROCDATE", 20),
	}
}

// DefaultEpisodeSpec describes the episode table.
func DefaultEpisodeSpec() EpisodeSpec {
	return EpisodeSpec{
		EpisodeID: "episode_order",
		PatientID: "PATID",
		Start:     "start_date",
		Type:      "type",
	}
}

// dateLayouts are tried in order when parsing cell values. Healthcare
// extracts mix bare dates, datetime stamps, and RFC3339.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses a cell value against the known layouts.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Preprocess flattens one encounter table into records: required columns
// are validated up front (missing ones are a hard, named error), rows
// with unparseable or missing dates are dropped and counted, and the wide
// optional code columns are collected into one ordered list per record.
// A table carrying none of the expected code columns degrades to empty
// code lists for every record, logged rather than raised.
func Preprocess(t *source.Table, spec TableSpec, logger zerolog.Logger) ([]Record, int, error) {
	for _, req := range []struct{ col, role string }{
		{spec.RecordID, "record id"},
		{spec.PatientID, "patient id"},
		{spec.Start, "interval start"},
	} {
		if req.col == "" || !t.HasColumn(req.col) {
			return nil, 0, fmt.Errorf("table %s: missing required %s column %q", t.Name(), req.role, req.col)
		}
	}

	hasEnd := spec.End != "" && t.HasColumn(spec.End)

	var presentCodes []string
	var presentDates []string
	for i, c := range spec.Codes {
		if !t.HasColumn(c) {
			continue
		}
		presentCodes = append(presentCodes, c)
		if i < len(spec.CodeDates) && t.HasColumn(spec.CodeDates[i]) {
			presentDates = append(presentDates, spec.CodeDates[i])
		} else {
			presentDates = append(presentDates, "")
		}
	}
	if len(presentCodes) == 0 {
		logger.Warn().
			Str("table", t.Name()).
			Int("expected_columns", len(spec.Codes)).
			Msg("no code columns found; all records will have empty code lists")
	}

	records := make([]Record, 0, t.NumRows())
	dropped := 0
	for row := 0; row < t.NumRows(); row++ {
		startCell, ok := t.Value(row, spec.Start)
		if !ok {
			dropped++
			continue
		}
		start, err := ParseDate(startCell)
		if err != nil {
			dropped++
			continue
		}

		end := start
		if hasEnd {
			endCell, ok := t.Value(row, spec.End)
			if !ok {
				dropped++
				continue
			}
			end, err = ParseDate(endCell)
			if err != nil {
				dropped++
				continue
			}
		}

		id, _ := t.Value(row, spec.RecordID)
		pid, _ := t.Value(row, spec.PatientID)

		rec := Record{
			ID:        id,
			PatientID: NormalizePatientID(pid),
			Start:     start,
			End:       end,
		}
		for i, col := range presentCodes {
			v, ok := t.Value(row, col)
			if !ok {
				continue
			}
			code := strings.TrimSpace(v)
			if code == "" {
				continue
			}
			rec.Codes = append(rec.Codes, code)
			if spec.CodeDates != nil {
				var ct time.Time
				if presentDates[i] != "" {
					if dv, ok := t.Value(row, presentDates[i]); ok {
						if parsed, err := ParseDate(dv); err == nil {
							ct = parsed
						}
					}
				}
				rec.CodeTimes = append(rec.CodeTimes, ct)
			}
		}
		records = append(records, rec)
	}

	if dropped > 0 {
		logger.Warn().
			Str("table", t.Name()).
			Int("dropped", dropped).
			Msg("dropped records with missing or unparseable dates")
	}
	return records, dropped, nil
}

// PrepareEpisodes converts the episode table into Episode values. Missing
// episode-id or start-date columns are hard errors. A missing patient-id
// column degrades to deriving the patient from the episode id's prefix
// before the first underscore, matching the upstream episode naming.
// Unparseable start dates are a hard error: episodes are expected to be
// cleaned before they reach the engine.
func PrepareEpisodes(t *source.Table, spec EpisodeSpec, logger zerolog.Logger) ([]Episode, error) {
	for _, req := range []struct{ col, role string }{
		{spec.EpisodeID, "episode id"},
		{spec.Start, "start date"},
	} {
		if req.col == "" || !t.HasColumn(req.col) {
			return nil, fmt.Errorf("table %s: missing required %s column %q", t.Name(), req.role, req.col)
		}
	}

	derivePatient := spec.PatientID == "" || !t.HasColumn(spec.PatientID)
	if derivePatient {
		logger.Warn().
			Str("table", t.Name()).
			Msg("no patient id column; deriving patient from episode id prefix")
	}
	hasType := spec.Type != "" && t.HasColumn(spec.Type)

	episodes := make([]Episode, 0, t.NumRows())
	for row := 0; row < t.NumRows(); row++ {
		id, ok := t.Value(row, spec.EpisodeID)
		if !ok {
			return nil, fmt.Errorf("table %s: row %d: empty episode id", t.Name(), row)
		}

		startCell, ok := t.Value(row, spec.Start)
		if !ok {
			return nil, fmt.Errorf("table %s: episode %s: empty start date", t.Name(), id)
		}
		start, err := ParseDate(startCell)
		if err != nil {
			return nil, fmt.Errorf("table %s: episode %s: %w", t.Name(), id, err)
		}

		var pid string
		if derivePatient {
			pid = id
			if i := strings.IndexByte(id, '_'); i >= 0 {
				pid = id[:i]
			}
		} else {
			pid, _ = t.Value(row, spec.PatientID)
		}

		ep := Episode{
			ID:        id,
			PatientID: NormalizePatientID(pid),
			Start:     start,
		}
		if hasType {
			if v, ok := t.Value(row, spec.Type); ok {
				ep.Type = strings.ToLower(strings.TrimSpace(v))
			}
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}
