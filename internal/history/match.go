package history

import (
	"fmt"
	"sort"
)

// Backend selects the matching strategy. The binary-search backend is the
// production path; the linear-scan backend is a reference implementation
// kept as a correctness oracle.
type Backend int

const (
	BackendBinarySearch Backend = iota
	BackendLinearScan
)

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "binary-search":
		return BackendBinarySearch, nil
	case "linear-scan":
		return BackendLinearScan, nil
	}
	return 0, fmt.Errorf("unknown matcher backend %q (want \"binary-search\" or \"linear-scan\")", s)
}

func (b Backend) String() string {
	switch b {
	case BackendBinarySearch:
		return "binary-search"
	case BackendLinearScan:
		return "linear-scan"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// Match returns the records in one patient's partition whose interval
// overlaps the window, excluding the querying episode's own source
// record. The partition must be sorted by interval end ascending (as
// built by BuildIndex).
//
// Overlap is inclusive on both bounds: a record ending exactly at the
// window start matches, as does a record starting exactly at the window
// end. For point records (Start == End) this reduces to
// windowStart <= timestamp <= windowEnd.
func Match(partition []Record, w Window, selfID string, backend Backend) []Record {
	if backend == BackendLinearScan {
		return matchLinear(partition, w, selfID)
	}
	return matchBinary(partition, w, selfID)
}

// matchBinary narrows the partition to the suffix where
// End >= w.Start (a necessary condition, found by binary search), then
// applies the exact predicate. The search only prunes: a single sort key
// cannot order by both interval fields, so correctness rests on the
// explicit predicate.
func matchBinary(partition []Record, w Window, selfID string) []Record {
	first := sort.Search(len(partition), func(i int) bool {
		return !partition[i].End.Before(w.Start)
	})

	var out []Record
	for _, r := range partition[first:] {
		if r.ID == selfID {
			continue
		}
		if overlaps(r, w) {
			out = append(out, r)
		}
	}
	return out
}

func matchLinear(partition []Record, w Window, selfID string) []Record {
	var out []Record
	for _, r := range partition {
		if r.ID == selfID {
			continue
		}
		if overlaps(r, w) {
			out = append(out, r)
		}
	}
	return out
}

// overlaps is the exact interval predicate:
// record.Start <= window.End AND record.End >= window.Start.
func overlaps(r Record, w Window) bool {
	return !r.Start.After(w.End) && !r.End.Before(w.Start)
}
