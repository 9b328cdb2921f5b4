// Package dataset loads the per-worker rows a burst binds into requests.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row maps column name to value for one worker.
type Row map[string]string

// Table is a loaded data file. Columns keeps header order.
type Table struct {
	Columns []string
	Rows    []Row
}

// Label is the row's first column value, which identifies the worker.
func (t *Table) Label(i int) string {
	if i < 0 || i >= len(t.Rows) || len(t.Columns) == 0 {
		return ""
	}
	return t.Rows[i][t.Columns[0]]
}

// Load reads a CSV file whose first line is a header.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV from r. Blank lines and rows with fewer than two fields
// are skipped. Values are trimmed.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("data file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{}
	for _, h := range header {
		t.Columns = append(t.Columns, strings.TrimSpace(h))
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) < 2 {
			continue
		}

		row := make(Row, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
