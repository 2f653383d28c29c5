package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"cbt-exam-service/internal/export"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet       = "Sheet1"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// XLSXLog keeps the submission table in an Excel workbook on disk.
type XLSXLog struct {
	path string
}

func NewXLSXLog(path string) *XLSXLog {
	return &XLSXLog{path: path}
}

func (l *XLSXLog) Read(_ context.Context) (export.Table, error) {
	data, err := readFile(l.path)
	if err != nil {
		return export.Table{}, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return export.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return export.Table{}, fmt.Errorf("read rows: %w", err)
	}
	return tableFromRows(rows), nil
}

func (l *XLSXLog) Replace(_ context.Context, table export.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	numeric := numericColumns(table.Header)
	rows := append([][]string{table.Header}, table.Rows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(i > 0 && numeric[j], v)
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	return replaceFile(l.path, ".submissions-*.xlsx", func(w io.Writer) error {
		if err := f.Write(w); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		return nil
	})
}

// Bytes returns the workbook as currently stored.
func (l *XLSXLog) Bytes(_ context.Context) ([]byte, error) {
	return readFile(l.path)
}

func (l *XLSXLog) ContentType() string {
	return xlsxContentType
}

func (l *XLSXLog) FileName() string {
	return filepath.Base(l.path)
}

// numericColumns marks the Score and Total columns. Every other cell, usernames
// and answer labels included, is written verbatim as text.
func numericColumns(header []string) map[int]bool {
	numeric := make(map[int]bool, 2)
	for i, name := range header {
		if name == "Score" || name == "Total" {
			numeric[i] = true
		}
	}
	return numeric
}

// cellValue stores score cells as numbers so spreadsheet tools can sum them.
func cellValue(number bool, v string) interface{} {
	if number {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return v
}
