package memory

import (
	"context"
	"sync"

	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/export"
)

// SubmissionLog is an in-memory export.Log.
type SubmissionLog struct {
	mu         sync.Mutex
	table      *export.Table
	replaces   int
	replaceErr error
}

func NewSubmissionLog() *SubmissionLog {
	return &SubmissionLog{}
}

// NewSubmissionLogWith starts from an existing table.
func NewSubmissionLogWith(table export.Table) *SubmissionLog {
	return &SubmissionLog{table: cloneTable(&table)}
}

func (l *SubmissionLog) Read(_ context.Context) (export.Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table == nil {
		return export.Table{}, domain.ErrLogNotFound
	}
	return *cloneTable(l.table), nil
}

func (l *SubmissionLog) Replace(_ context.Context, table export.Table) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.replaceErr != nil {
		return l.replaceErr
	}
	l.table = cloneTable(&table)
	l.replaces++
	return nil
}

// FailReplaces makes every later Replace return err without touching the table.
func (l *SubmissionLog) FailReplaces(err error) {
	l.mu.Lock()
	l.replaceErr = err
	l.mu.Unlock()
}

// Replaces reports how many successful rewrites happened.
func (l *SubmissionLog) Replaces() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaces
}

func cloneTable(t *export.Table) *export.Table {
	out := &export.Table{Header: append([]string(nil), t.Header...)}
	for _, row := range t.Rows {
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	return out
}
