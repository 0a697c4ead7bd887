package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures one extraction run.
type Options struct {
	LookbackDays int
	Mode         FeatureMode // diagnosis extraction only
	Backend      Backend
}

func (o Options) validate() error {
	if o.LookbackDays < 1 {
		return fmt.Errorf("lookback days must be at least 1, got %d", o.LookbackDays)
	}
	return nil
}

// DxExtractor collects diagnosis codes from inpatient (interval) and ED
// (point) encounter sources for each episode's lookback window.
type DxExtractor struct {
	logger zerolog.Logger
	opts   Options
}

// NewDxExtractor validates the options and returns an extractor.
func NewDxExtractor(logger zerolog.Logger, opts Options) (*DxExtractor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &DxExtractor{logger: logger, opts: opts}, nil
}

// Extract runs the full pipeline over pre-loaded, preprocessed records:
// build one immutable index per source, then answer every episode with a
// window query against its patient's partition. Episodes are processed in
// input order and the per-episode code union is order-independent, so
// identical inputs always produce identical output.
func (x *DxExtractor) Extract(episodes []Episode, inpatient, ed []Record) ([]Result, *Stats) {
	started := time.Now()

	inpIdx := BuildIndex(inpatient)
	var edIdx *Index
	if x.opts.Mode != ModeInpOnly {
		edIdx = BuildIndex(ed)
	}

	x.logger.Info().
		Int("episodes", len(episodes)).
		Int("inpatient_records", inpIdx.Records()).
		Int("inpatient_patients", inpIdx.Patients()).
		Str("mode", x.opts.Mode.String()).
		Str("backend", x.opts.Backend.String()).
		Int("lookback_days", x.opts.LookbackDays).
		Msg("starting diagnosis extraction")

	results := make([]Result, 0, len(episodes))
	stats := newStats(len(episodes))

	for _, ep := range episodes {
		w := ResolveWindow(ep.Start, x.opts.LookbackDays)
		useInp, useED := x.opts.Mode.Sources(ep.Type)

		var matches []Record
		if useInp {
			matches = Match(inpIdx.Partition(ep.PatientID), w, ep.ID, x.opts.Backend)
		}
		if useED && edIdx != nil {
			matches = append(matches, Match(edIdx.Partition(ep.PatientID), w, ep.ID, x.opts.Backend)...)
		}

		codes := UnionCodes(matches)
		results = append(results, Result{
			EpisodeID: ep.ID,
			PatientID: ep.PatientID,
			StartDate: ep.Start,
			Codes:     codes,
		})
		stats.observe(codes)
	}

	stats.Patients = inpIdx.Patients()
	stats.Elapsed = time.Since(started)
	x.logSummary(stats)
	return results, stats
}

func (x *DxExtractor) logSummary(s *Stats) {
	x.logger.Info().
		Str("run_id", s.RunID).
		Int("episodes", s.Episodes).
		Int("episodes_with_codes", s.EpisodesWithCodes).
		Int("total_codes", s.TotalCodes).
		Dur("elapsed", s.Elapsed).
		Msg("extraction complete")
}

func newStats(episodes int) *Stats {
	return &Stats{
		RunID:       uuid.NewString(),
		Episodes:    episodes,
		DroppedRows: make(map[string]int),
	}
}

func (s *Stats) observe(codes []string) {
	if len(codes) > 0 {
		s.EpisodesWithCodes++
		s.TotalCodes += len(codes)
	}
}
