package spreadsheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"

	"cbt-exam-service/internal/export"
)

// CSVLog keeps the submission table as a comma-separated file.
type CSVLog struct {
	path string
}

func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

func (l *CSVLog) Read(_ context.Context) (export.Table, error) {
	data, err := readFile(l.path)
	if err != nil {
		return export.Table{}, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return export.Table{}, fmt.Errorf("parse csv: %w", err)
	}
	return tableFromRows(rows), nil
}

func (l *CSVLog) Replace(_ context.Context, table export.Table) error {
	return replaceFile(l.path, ".submissions-*.csv", func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(table.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(table.Rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	})
}

func (l *CSVLog) Bytes(_ context.Context) ([]byte, error) {
	return readFile(l.path)
}

func (l *CSVLog) ContentType() string {
	return "text/csv"
}

func (l *CSVLog) FileName() string {
	return filepath.Base(l.path)
}

// tableFromRows splits the header off and pads short rows to the header width.
func tableFromRows(rows [][]string) export.Table {
	if len(rows) == 0 {
		return export.Table{}
	}
	table := export.Table{Header: rows[0]}
	for _, row := range rows[1:] {
		padded := make([]string, len(table.Header))
		copy(padded, row)
		table.Rows = append(table.Rows, padded)
	}
	return table
}
