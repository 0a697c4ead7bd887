package history

import (
	"time"

	"github.com/rs/zerolog"
)

// ProcExtractor collects procedure codes from the single inpatient
// encounter source. There is no feature-mode branching; each result also
// reports per-code occurrence times, falling back to the owning record's
// admit date when a code has no date of its own.
type ProcExtractor struct {
	logger zerolog.Logger
	opts   Options
}

// NewProcExtractor validates the options and returns an extractor. The
// Mode field is ignored; procedure extraction always queries the one
// interval source.
func NewProcExtractor(logger zerolog.Logger, opts Options) (*ProcExtractor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &ProcExtractor{logger: logger, opts: opts}, nil
}

// Extract answers every episode with a window query against the
// inpatient index. Window matching always uses the containing record's
// interval; per-code dates affect only the reported occurrence times.
func (x *ProcExtractor) Extract(episodes []Episode, inpatient []Record) ([]Result, *Stats) {
	started := time.Now()

	idx := BuildIndex(inpatient)

	x.logger.Info().
		Int("episodes", len(episodes)).
		Int("inpatient_records", idx.Records()).
		Int("inpatient_patients", idx.Patients()).
		Str("backend", x.opts.Backend.String()).
		Int("lookback_days", x.opts.LookbackDays).
		Msg("starting procedure extraction")

	results := make([]Result, 0, len(episodes))
	stats := newStats(len(episodes))

	for _, ep := range episodes {
		w := ResolveWindow(ep.Start, x.opts.LookbackDays)
		matches := Match(idx.Partition(ep.PatientID), w, ep.ID, x.opts.Backend)

		codes := UnionCodes(matches)
		res := Result{
			EpisodeID: ep.ID,
			PatientID: ep.PatientID,
			StartDate: ep.Start,
			Codes:     codes,
		}
		if len(codes) > 0 {
			res.Occurrences = UnionOccurrences(matches)
		}
		results = append(results, res)
		stats.observe(codes)
	}

	stats.Patients = idx.Patients()
	stats.Elapsed = time.Since(started)
	x.logger.Info().
		Str("run_id", stats.RunID).
		Int("episodes", stats.Episodes).
		Int("episodes_with_codes", stats.EpisodesWithCodes).
		Int("total_codes", stats.TotalCodes).
		Dur("elapsed", stats.Elapsed).
		Msg("extraction complete")
	return results, stats
}
