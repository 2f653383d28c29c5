package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cbt-exam-service/internal/domain"
)

// TimestampLayout is how submission times are written to the log.
const TimestampLayout = "2006-01-02 15:04:05"

// Table is the full content of a tabular log: a header row followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Log abstracts the durable tabular file (xlsx, csv, in-memory).
type Log interface {
	// Read returns domain.ErrLogNotFound if nothing was exported yet.
	Read(ctx context.Context) (Table, error)
	// Replace must swap in the new content atomically; a failed replace leaves
	// the previous content intact.
	Replace(ctx context.Context, table Table) error
}

// Locker serializes writers of the log, possibly across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Exporter merges graded submissions into the durable log one writer at a time.
type Exporter struct {
	log    Log
	locker Locker
}

func NewExporter(log Log, locker Locker) *Exporter {
	return &Exporter{log: log, locker: locker}
}

// AppendSubmission adds record as the last row of the log. Any failure is returned
// as a *domain.ExportError carrying the record.
func (e *Exporter) AppendSubmission(ctx context.Context, record domain.SubmissionRecord) error {
	if err := e.append(ctx, record); err != nil {
		return &domain.ExportError{Record: record, Err: err}
	}
	return nil
}

func (e *Exporter) append(ctx context.Context, record domain.SubmissionRecord) error {
	unlock, err := e.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("acquire export lock: %w", err)
	}
	defer unlock()

	columns, values := Row(record)

	table, err := e.log.Read(ctx)
	switch {
	case errors.Is(err, domain.ErrLogNotFound):
		table = Table{}
	case err != nil:
		return fmt.Errorf("read log: %w", err)
	}

	if err := e.log.Replace(ctx, Merge(table, columns, values)); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

// Row flattens a record into parallel column and value slices.
// Unanswered questions produce an empty cell.
func Row(record domain.SubmissionRecord) ([]string, []string) {
	columns := make([]string, 0, len(record.Answers)+4)
	values := make([]string, 0, len(record.Answers)+4)

	columns = append(columns, "Timestamp", "Username")
	values = append(values, record.Timestamp.Format(TimestampLayout), record.Username)
	for _, a := range record.Answers {
		columns = append(columns, "Q"+strconv.FormatInt(a.QuestionID, 10))
		if a.Answered {
			values = append(values, a.Label)
		} else {
			values = append(values, "")
		}
	}
	columns = append(columns, "Score", "Total")
	values = append(values, strconv.Itoa(record.Score), strconv.Itoa(record.Total))
	return columns, values
}

// Merge appends one row to table. The existing header wins; columns it lacks are
// added at the end and earlier rows are padded with empty cells. An empty table
// takes its header from the row.
func Merge(table Table, columns, values []string) Table {
	if len(table.Header) == 0 {
		return Table{
			Header: append([]string(nil), columns...),
			Rows:   [][]string{append([]string(nil), values...)},
		}
	}

	header := append([]string(nil), table.Header...)
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range columns {
		if _, ok := index[name]; !ok {
			index[name] = len(header)
			header = append(header, name)
		}
	}

	rows := make([][]string, 0, len(table.Rows)+1)
	for _, row := range table.Rows {
		rows = append(rows, pad(row, len(header)))
	}

	row := make([]string, len(header))
	for i, name := range columns {
		row[index[name]] = values[i]
	}
	rows = append(rows, row)

	return Table{Header: header, Rows: rows}
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
