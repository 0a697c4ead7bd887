package history

import "sort"

// UnionCodes merges the code lists of the matched records into a
// deduplicated, lexicographically sorted slice. The output is independent
// of match order, so results are reproducible run to run. Zero matches
// yield an empty slice, never nil.
func UnionCodes(matches []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range matches {
		for _, c := range r.Codes {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// UnionOccurrences merges the codes of the matched records keeping, for
// each distinct code, its earliest occurrence time (per-code timestamps
// when present, otherwise the owning record's start date). Output is
// sorted by code.
func UnionOccurrences(matches []Record) []Occurrence {
	earliest := make(map[string]int) // code -> index into occ
	var occ []Occurrence
	for mi := range matches {
		r := &matches[mi]
		for i, c := range r.Codes {
			t := r.OccurrenceTime(i)
			if j, ok := earliest[c]; ok {
				if t.Before(occ[j].Time) {
					occ[j].Time = t
				}
				continue
			}
			earliest[c] = len(occ)
			occ = append(occ, Occurrence{Code: c, Time: t})
		}
	}
	sort.Slice(occ, func(i, j int) bool { return occ[i].Code < occ[j].Code })
	return occ
}
