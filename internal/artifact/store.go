// Package artifact reads the files a configuration depends on: serialized
// model weights and the training table its scaler is fitted from.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrArtifactNotFound     = errors.New("artifact not found")
	ErrMissingFeatureColumn = errors.New("missing feature column")
	ErrMalformedValue       = errors.New("malformed training value")
	ErrUnsupportedFormat    = errors.New("unsupported training data format")
)

// Store is the source of model artifacts. Implementations must be safe for
// concurrent use.
type Store interface {
	ReadModelWeights(ctx context.Context, path string) ([]byte, error)
	ReadTrainingTable(ctx context.Context, path string) (*Table, error)
}

// Table is a training dataset keyed by column name. Cells are kept as text
// and only parsed for the columns a configuration selects.
type Table struct {
	Columns []string
	Records [][]string
}

func NewTable(header []string, records [][]string) *Table {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Columns: cols, Records: records}
}

func (t *Table) index(column string) (int, bool) {
	for i, c := range t.Columns {
		if c == column {
			return i, true
		}
	}
	return 0, false
}

// Select returns the named columns, in the given order, as a float matrix.
// Rows whose selected cells are all empty are skipped; spreadsheets often
// carry trailing blank rows. A row with only some of them empty is malformed.
func (t *Table) Select(columns []string) ([][]float64, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		j, ok := t.index(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingFeatureColumn, name)
		}
		idx[i] = j
	}

	rows := make([][]float64, 0, len(t.Records))
	for r, record := range t.Records {
		if blank(record, idx) {
			continue
		}
		row := make([]float64, len(idx))
		for i, j := range idx {
			if j >= len(record) {
				return nil, fmt.Errorf("%w: row %d has no value for %q", ErrMalformedValue, r+1, columns[i])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrMalformedValue, r+1, columns[i], err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func blank(record []string, idx []int) bool {
	for _, j := range idx {
		if j < len(record) && strings.TrimSpace(record[j]) != "" {
			return false
		}
	}
	return true
}
