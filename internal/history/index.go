package history

import (
	"sort"
	"strings"
)

// Index is the immutable per-patient partition index over one source
// table. It is built once and queried for every episode; rebuilding is
// the only way to reflect new data.
type Index struct {
	partitions map[string][]Record
}

// BuildIndex groups records by normalized patient id and sorts each
// partition by interval end, ascending. The global pre-sort by
// (start, end) fixes the relative order of ties; the per-partition
// re-sort by end is mandatory because a global sort key cannot guarantee
// end-order within a group.
func BuildIndex(records []Record) *Index {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	partitions := make(map[string][]Record)
	for _, r := range sorted {
		pid := NormalizePatientID(r.PatientID)
		partitions[pid] = append(partitions[pid], r)
	}
	for pid := range partitions {
		p := partitions[pid]
		sort.SliceStable(p, func(i, j int) bool {
			return p[i].End.Before(p[j].End)
		})
	}
	return &Index{partitions: partitions}
}

// Partition returns the records for one patient, sorted by interval end.
// An unknown patient yields an empty partition: a patient with no prior
// encounters is valid, not an error. Callers must not mutate the
// returned slice.
func (ix *Index) Partition(patientID string) []Record {
	return ix.partitions[NormalizePatientID(patientID)]
}

// Patients returns the number of distinct patients in the index.
func (ix *Index) Patients() int { return len(ix.partitions) }

// Records returns the total number of indexed records.
func (ix *Index) Records() int {
	n := 0
	for _, p := range ix.partitions {
		n += len(p)
	}
	return n
}

// NormalizePatientID canonicalizes a patient identifier for partition
// lookup. Source systems disagree on padding, so ids are compared
// trimmed.
func NormalizePatientID(id string) string {
	return strings.TrimSpace(id)
}
