// Package output writes extraction results for downstream feature
// builders. NDJSON is the only format: the list-valued codes column has
// no faithful flat-CSV encoding.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/meds/historian/internal/history"
)

// WriteNDJSON writes one JSON object per result row.
func WriteNDJSON(w io.Writer, results []history.Result) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range results {
		if err := enc.Encode(&results[i]); err != nil {
			return fmt.Errorf("encode result %s: %w", results[i].EpisodeID, err)
		}
	}
	return bw.Flush()
}

// WriteNDJSONFile writes results to a file, creating or truncating it.
func WriteNDJSONFile(path string, results []history.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteNDJSON(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
