package history

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newDx(t *testing.T, opts Options) *DxExtractor {
	t.Helper()
	x, err := NewDxExtractor(zerolog.Nop(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

func TestDxExtractScenario(t *testing.T) {
	episodes := []Episode{
		{ID: "ep-1", PatientID: "p1", Start: d(2024, 6, 10), Type: "inp"},
	}
	inpatient := []Record{
		{ID: "D1", PatientID: "p1", Start: d(2024, 6, 1), End: d(2024, 6, 3), Codes: []string{"I10", "E11"}},
		{ID: "D2", PatientID: "p1", Start: d(2024, 6, 5), End: d(2024, 6, 7), Codes: []string{"E11", "J18"}},
		{ID: "D3", PatientID: "p1", Start: d(2024, 6, 10), End: d(2024, 6, 12), Codes: []string{"Z99"}},
	}

	x := newDx(t, Options{LookbackDays: 10, Mode: ModeInpOnly})
	results, stats := x.Extract(episodes, inpatient, nil)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	want := []string{"E11", "I10", "J18"}
	if !reflect.DeepEqual(results[0].Codes, want) {
		t.Errorf("codes = %v, want %v", results[0].Codes, want)
	}
	if stats.EpisodesWithCodes != 1 || stats.TotalCodes != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDxExtractModes(t *testing.T) {
	episodes := []Episode{
		{ID: "inp-ep", PatientID: "p1", Start: d(2024, 6, 10), Type: "inp"},
		{ID: "ed-ep", PatientID: "p1", Start: d(2024, 6, 10), Type: "ed"},
	}
	inpatient := []Record{
		{ID: "D1", PatientID: "p1", Start: d(2024, 6, 1), End: d(2024, 6, 3), Codes: []string{"I10"}},
	}
	ed := []Record{
		{ID: "V1", PatientID: "p1", Start: d(2024, 6, 5), End: d(2024, 6, 5), Codes: []string{"R07"}},
	}

	codesFor := func(mode FeatureMode) map[string][]string {
		x := newDx(t, Options{LookbackDays: 10, Mode: mode})
		results, _ := x.Extract(episodes, inpatient, ed)
		out := make(map[string][]string, len(results))
		for _, r := range results {
			out[r.EpisodeID] = r.Codes
		}
		return out
	}

	inpOnly := codesFor(ModeInpOnly)
	if !reflect.DeepEqual(inpOnly["inp-ep"], []string{"I10"}) || !reflect.DeepEqual(inpOnly["ed-ep"], []string{"I10"}) {
		t.Errorf("inp only: %v", inpOnly)
	}

	both := codesFor(ModeBoth)
	if !reflect.DeepEqual(both["inp-ep"], []string{"I10", "R07"}) || !reflect.DeepEqual(both["ed-ep"], []string{"I10", "R07"}) {
		t.Errorf("both: %v", both)
	}

	// ED visits feed every episode except inpatient ones.
	ignore := codesFor(ModeInpIgnoreED)
	if !reflect.DeepEqual(ignore["inp-ep"], []string{"I10"}) {
		t.Errorf("inp ignore ed, inp episode: %v", ignore["inp-ep"])
	}
	if !reflect.DeepEqual(ignore["ed-ep"], []string{"I10", "R07"}) {
		t.Errorf("inp ignore ed, ed episode: %v", ignore["ed-ep"])
	}
}

func TestDxExtractDeduplicatesAcrossSources(t *testing.T) {
	episodes := []Episode{
		{ID: "ep-1", PatientID: "p1", Start: d(2024, 6, 10)},
	}
	inpatient := []Record{
		{ID: "D1", PatientID: "p1", Start: d(2024, 6, 1), End: d(2024, 6, 3), Codes: []string{"I10"}},
	}
	ed := []Record{
		{ID: "V1", PatientID: "p1", Start: d(2024, 6, 5), End: d(2024, 6, 5), Codes: []string{"I10"}},
	}

	x := newDx(t, Options{LookbackDays: 10, Mode: ModeBoth})
	results, _ := x.Extract(episodes, inpatient, ed)

	if !reflect.DeepEqual(results[0].Codes, []string{"I10"}) {
		t.Errorf("codes = %v, want single I10", results[0].Codes)
	}
}

func TestDxExtractUnknownPatient(t *testing.T) {
	episodes := []Episode{
		{ID: "ep-1", PatientID: "stranger", Start: d(2024, 6, 10)},
	}
	inpatient := []Record{
		{ID: "D1", PatientID: "p1", Start: d(2024, 6, 1), End: d(2024, 6, 3), Codes: []string{"I10"}},
	}

	x := newDx(t, Options{LookbackDays: 10, Mode: ModeInpOnly})
	results, _ := x.Extract(episodes, inpatient, nil)

	if results[0].Codes == nil {
		t.Fatal("codes must be an empty slice, never nil")
	}
	if len(results[0].Codes) != 0 {
		t.Errorf("codes = %v, want none", results[0].Codes)
	}
}

func TestDxExtractDeterministic(t *testing.T) {
	episodes := []Episode{
		{ID: "ep-1", PatientID: "p1", Start: d(2024, 6, 10)},
		{ID: "ep-2", PatientID: "p2", Start: d(2024, 7, 1)},
	}
	inpatient := []Record{
		{ID: "D1", PatientID: "p1", Start: d(2024, 6, 1), End: d(2024, 6, 3), Codes: []string{"I10", "E11"}},
		{ID: "D2", PatientID: "p2", Start: d(2024, 6, 20), End: d(2024, 6, 25), Codes: []string{"J18"}},
	}

	x := newDx(t, Options{LookbackDays: 30, Mode: ModeInpOnly})
	first, _ := x.Extract(episodes, inpatient, nil)
	second, _ := x.Extract(episodes, inpatient, nil)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must produce identical results, including order")
	}
}

func TestNewDxExtractorRejectsBadLookback(t *testing.T) {
	if _, err := NewDxExtractor(zerolog.Nop(), Options{LookbackDays: 0}); err == nil {
		t.Error("zero lookback must be rejected")
	}
	if _, err := NewDxExtractor(zerolog.Nop(), Options{LookbackDays: -5}); err == nil {
		t.Error("negative lookback must be rejected")
	}
}

func TestRunDx(t *testing.T) {
	episodes := mustTable(t, "episodes",
		[]string{"episode_order", "PATID", "start_date", "type"},
		[]string{"ep-1", "p1", "2024-06-10", "inp"},
	)
	inpatient := mustTable(t, "dad",
		[]string{"episode_order", "PATID", "ADMITDATE_DT", "DISDATE_DT", "DXCODE1", "DXCODE2"},
		[]string{"D1", "p1", "2024-06-01", "2024-06-03", "I10", "E11"},
		[]string{"bad", "p1", "garbage", "2024-06-03", "Z99", ""},
	)

	results, stats, err := RunDx(zerolog.Nop(), episodes, inpatient, nil, Options{LookbackDays: 10, Mode: ModeInpOnly})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !reflect.DeepEqual(results[0].Codes, []string{"E11", "I10"}) {
		t.Errorf("codes = %v", results[0].Codes)
	}
	if stats.DroppedRows["dad"] != 1 {
		t.Errorf("dropped rows for dad = %d, want 1", stats.DroppedRows["dad"])
	}
}

func TestRunDxRequiresEDTable(t *testing.T) {
	episodes := mustTable(t, "episodes",
		[]string{"episode_order", "PATID", "start_date"},
		[]string{"ep-1", "p1", "2024-06-10"},
	)
	inpatient := mustTable(t, "dad",
		[]string{"episode_order", "PATID", "ADMITDATE_DT", "DISDATE_DT", "DXCODE1"},
		[]string{"D1", "p1", "2024-06-01", "2024-06-03", "I10"},
	)

	for _, mode := range []FeatureMode{ModeBoth, ModeInpIgnoreED} {
		_, _, err := RunDx(zerolog.Nop(), episodes, inpatient, nil, Options{LookbackDays: 10, Mode: mode})
		if err == nil {
			t.Errorf("mode %v: nil ED table must be an error, not a panic", mode)
			continue
		}
		if !strings.Contains(err.Error(), "ED table") {
			t.Errorf("mode %v: error must name the missing table, got %q", mode, err)
		}
	}

	// "inp only" never touches the ED source, so nil is fine there.
	if _, _, err := RunDx(zerolog.Nop(), episodes, inpatient, nil, Options{LookbackDays: 10, Mode: ModeInpOnly}); err != nil {
		t.Errorf("inp only with nil ED table: %v", err)
	}
}
