package spreadsheet

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fileLog interface {
	export.Log
	Bytes(ctx context.Context) ([]byte, error)
}

func sampleTable() export.Table {
	return export.Table{
		Header: []string{"Timestamp", "Username", "Q1", "Q2", "Score", "Total"},
		Rows: [][]string{
			{"2026-03-01 09:00:00", "Jane Smith", "A", "", "1", "2"},
			{"2026-03-01 09:05:00", "ADEGOKE, Praise Moyinoluwa", "C", "B", "1", "2"},
		},
	}
}

func TestLogsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logs := map[string]fileLog{
		"xlsx": NewXLSXLog(filepath.Join(dir, "submissions.xlsx")),
		"csv":  NewCSVLog(filepath.Join(dir, "submissions.csv")),
	}
	for name, log := range logs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := log.Read(ctx)
			require.ErrorIs(t, err, domain.ErrLogNotFound)
			_, err = log.Bytes(ctx)
			require.ErrorIs(t, err, domain.ErrLogNotFound)

			require.NoError(t, log.Replace(ctx, sampleTable()))
			got, err := log.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleTable(), got)

			data, err := log.Bytes(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestXLSXLogWritesScoresAsNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.xlsx")
	require.NoError(t, NewXLSXLog(path).Replace(context.Background(), sampleTable()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	typ, err := f.GetCellType("Sheet1", "E2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)
}

func TestXLSXLogKeepsNumericLookingText(t *testing.T) {
	ctx := context.Background()
	log := NewXLSXLog(filepath.Join(t.TempDir(), "submissions.xlsx"))
	exporter := export.NewExporter(log, export.NewMutexLocker())

	names := []string{"00123", "+42", "1e3", "John Doe"}
	for _, name := range names {
		require.NoError(t, exporter.AppendSubmission(ctx, domain.SubmissionRecord{
			Username: name,
			Answers:  []domain.SelectedAnswer{{QuestionID: 1, Label: "A", Answered: true}},
			Score:    1,
			Total:    1,
		}))
	}

	table, err := log.Read(ctx)
	require.NoError(t, err)
	require.Len(t, table.Rows, len(names))
	for i, name := range names {
		assert.Equal(t, name, table.Rows[i][1])
		assert.Equal(t, "A", table.Rows[i][2])
		assert.Equal(t, "1", table.Rows[i][3])
	}

	f, err := excelize.OpenFile(log.path)
	require.NoError(t, err)
	defer f.Close()
	typ, err := f.GetCellType("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeSharedString, typ)
	typ, err = f.GetCellType("Sheet1", "D2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
}

func TestReplaceFileKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := replaceFile(path, ".submissions-*.csv", func(w io.Writer) error {
		_, _ = w.Write([]byte("half"))
		return errors.New("disk full")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestExporterOverXLSX(t *testing.T) {
	ctx := context.Background()
	log := NewXLSXLog(filepath.Join(t.TempDir(), "exports", "submissions.xlsx"))
	exporter := export.NewExporter(log, export.NewMutexLocker())

	for _, name := range []string{"John Doe", "Jane Smith", "Peter Johnson", "Mary Adams"} {
		require.NoError(t, exporter.AppendSubmission(ctx, domain.SubmissionRecord{
			Username: name,
			Answers:  []domain.SelectedAnswer{{QuestionID: 1, Label: "A", Answered: true}},
			Score:    1,
			Total:    1,
		}))
	}

	table, err := log.Read(ctx)
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)
	assert.Equal(t, "Mary Adams", table.Rows[3][1])
	assert.Equal(t, []string{"Timestamp", "Username", "Q1", "Score", "Total"}, table.Header)
}
