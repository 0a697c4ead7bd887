package history

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meds/historian/internal/source"
)

// RunDx wires the full diagnosis pipeline for callers holding raw tables:
// prepare episodes, preprocess both encounter sources with the default
// wide-column schemas, and extract. Dropped-row counts from preprocessing
// are surfaced on the run statistics.
func RunDx(logger zerolog.Logger, episodes, inpatient, ed *source.Table, opts Options) ([]Result, *Stats, error) {
	eps, err := PrepareEpisodes(episodes, DefaultEpisodeSpec(), logger)
	if err != nil {
		return nil, nil, err
	}

	inpRecs, inpDropped, err := Preprocess(inpatient, DefaultInpatientDxSpec(), logger)
	if err != nil {
		return nil, nil, err
	}

	var edRecs []Record
	edDropped := 0
	if opts.Mode != ModeInpOnly {
		if ed == nil {
			return nil, nil, fmt.Errorf("feature mode %q requires an ED table", opts.Mode)
		}
		edRecs, edDropped, err = Preprocess(ed, DefaultEDDxSpec(), logger)
		if err != nil {
			return nil, nil, err
		}
	}

	x, err := NewDxExtractor(logger, opts)
	if err != nil {
		return nil, nil, err
	}
	results, stats := x.Extract(eps, inpRecs, edRecs)
	stats.DroppedRows[inpatient.Name()] = inpDropped
	if opts.Mode != ModeInpOnly {
		stats.DroppedRows[ed.Name()] = edDropped
	}
	return results, stats, nil
}

// RunProc wires the full procedure pipeline: prepare episodes, preprocess
// the single inpatient source, and extract.
func RunProc(logger zerolog.Logger, episodes, inpatient *source.Table, opts Options) ([]Result, *Stats, error) {
	eps, err := PrepareEpisodes(episodes, DefaultEpisodeSpec(), logger)
	if err != nil {
		return nil, nil, err
	}

	recs, dropped, err := Preprocess(inpatient, DefaultProcSpec(), logger)
	if err != nil {
		return nil, nil, err
	}

	x, err := NewProcExtractor(logger, opts)
	if err != nil {
		return nil, nil, err
	}
	results, stats := x.Extract(eps, recs)
	stats.DroppedRows[inpatient.Name()] = dropped
	return results, stats, nil
}
