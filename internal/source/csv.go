package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadCSV loads a delimited file into a Table. The first row is the
// header. When wanted is non-empty, only the wanted columns that exist in
// the header are kept (projection happens while reading, so unwanted
// columns are never materialized).
func ReadCSV(r io.Reader, name string, wanted []string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // short rows are padded with nulls

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("table %s: read header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	keepIdx := make([]int, 0, len(header))
	keepCols := make([]string, 0, len(header))
	if len(wanted) == 0 {
		for i, c := range header {
			keepIdx = append(keepIdx, i)
			keepCols = append(keepCols, c)
		}
	} else {
		pos := make(map[string]int, len(header))
		for i, c := range header {
			pos[c] = i
		}
		for _, w := range wanted {
			if i, ok := pos[w]; ok {
				keepIdx = append(keepIdx, i)
				keepCols = append(keepCols, w)
			}
		}
	}

	t, err := NewTable(name, keepCols)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %s: line %d: %w", name, line, err)
		}
		cells := make([]string, len(keepIdx))
		for j, i := range keepIdx {
			if i < len(rec) {
				cells[j] = strings.TrimSpace(rec[i])
			}
		}
		if err := t.AppendRow(cells); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadCSVFile loads a CSV file from disk. The table is named after the
// file path.
func ReadCSVFile(path string, wanted []string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, path, wanted)
}
