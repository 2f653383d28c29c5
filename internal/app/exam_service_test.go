package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/export"
	"cbt-exam-service/internal/infra/memory"
)

func TestSubmitAttemptScoresAndCommits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A", 2: "C"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("expected 1/2, got %+v", result)
	}

	account, _ := env.accounts.GetAccount(ctx, env.account.ID)
	if !account.Attempted || account.Score == nil || *account.Score != 1 {
		t.Fatalf("expected attempted account with score 1, got %+v", account)
	}

	table, err := env.log.Read(ctx)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := []string{"2026-03-01 10:30:00", "John Doe", "A", "C", "1", "2"}
	if len(table.Rows) != 1 || !equal(table.Rows[0], want) {
		t.Fatalf("expected row %v, got %v", want, table.Rows)
	}
}

func TestSubmitAttemptRejectsResubmission(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A", 2: "C"}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A", 2: "B"})
	if !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}

	account, _ := env.accounts.GetAccount(ctx, env.account.ID)
	if *account.Score != 1 {
		t.Fatalf("expected score to stay 1, got %d", *account.Score)
	}
	if env.log.Replaces() != 1 {
		t.Fatalf("expected a single export, got %d", env.log.Replaces())
	}
}

func TestSubmitAttemptUnansweredAndUnknownQuestions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{2: "B", 99: "A", 100: "B"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("expected 1/2, got %+v", result)
	}

	table, _ := env.log.Read(ctx)
	if table.Rows[0][2] != "" || table.Rows[0][3] != "B" {
		t.Fatalf("expected blank Q1 and B for Q2, got %v", table.Rows[0])
	}
	if len(table.Header) != 6 {
		t.Fatalf("unknown ids must not add columns, header %v", table.Header)
	}
}

func TestSubmitAttemptIsExactMatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "a", 2: " B"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("expected case and whitespace sensitive grading, got %d", result.Score)
	}
}

func TestGradingIsDeterministic(t *testing.T) {
	ctx := context.Background()
	answers := map[int64]string{1: "A", 2: "B"}
	for i := 0; i < 5; i++ {
		env := newTestEnv(t)
		result, err := env.service.SubmitAttempt(ctx, env.account.ID, answers)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if result.Score != 2 || result.Total != 2 {
			t.Fatalf("run %d: expected 2/2, got %+v", i, result)
		}
	}
}

func TestSubmitAttemptUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.SubmitAttempt(context.Background(), 404, map[int64]string{1: "A"})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if env.log.Replaces() != 0 {
		t.Fatalf("expected no export")
	}
}

func TestConcurrentSubmissionsForSameAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const n = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A", 2: "B"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyAttempted):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || rejected != n-1 {
		t.Fatalf("expected 1 success and %d rejections, got %d and %d", n-1, ok, rejected)
	}
	table, _ := env.log.Read(ctx)
	if len(table.Rows) != 1 {
		t.Fatalf("expected exactly one exported row, got %d", len(table.Rows))
	}
}

func TestConcurrentSubmissionsAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := []int64{env.account.ID}
	for _, name := range []string{"Jane Smith", "Peter Johnson", "Mary Adams", "Samuel Oladele"} {
		ids = append(ids, env.accounts.AddAccount(name, "hash").ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := env.service.SubmitAttempt(ctx, id, map[int64]string{1: "A"}); err != nil {
				t.Errorf("submit %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	table, _ := env.log.Read(ctx)
	if len(table.Rows) != len(ids) {
		t.Fatalf("expected %d rows, got %d", len(ids), len(table.Rows))
	}
	seen := map[string]int{}
	for _, row := range table.Rows {
		seen[row[1]]++
	}
	for name, count := range seen {
		if count != 1 {
			t.Fatalf("expected one row for %q, got %d", name, count)
		}
	}
	for _, account := range env.accounts.Accounts() {
		if account.Attempted != (account.Score != nil) {
			t.Fatalf("attempted/score invariant broken for %+v", account)
		}
	}
}

func TestExportFailureKeepsCommittedResult(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.log.FailReplaces(errors.New("file locked"))

	result, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A", 2: "B"})
	if !errors.Is(err, domain.ErrExportFailed) {
		t.Fatalf("expected export failure, got %v", err)
	}
	var exportErr *domain.ExportError
	if !errors.As(err, &exportErr) || exportErr.Record.Username != "John Doe" || exportErr.Record.Score != 2 {
		t.Fatalf("expected record to be preserved, got %+v", exportErr)
	}
	if result.Score != 2 || result.Total != 2 {
		t.Fatalf("expected result despite export failure, got %+v", result)
	}

	account, _ := env.accounts.GetAccount(ctx, env.account.ID)
	if !account.Attempted {
		t.Fatalf("export failure must not roll back the attempt")
	}
	if _, err := env.service.SubmitAttempt(ctx, env.account.ID, nil); !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}
}

func TestStorageFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	flaky := &flakyAccounts{AccountStore: env.accounts, markErr: errors.New("connection refused")}
	service := app.NewExamService(flaky, env.catalog, env.exporter)

	_, err := service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A"})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if env.log.Replaces() != 0 {
		t.Fatalf("nothing may be exported without a commit")
	}

	flaky.markErr = nil
	if _, err := service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestStartExamHidesAnswers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	questions, err := env.service.StartExam(ctx, env.account.ID)
	if err != nil {
		t.Fatalf("start exam: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	for _, q := range questions {
		if q.CorrectAnswer != "" {
			t.Fatalf("answer key leaked for question %d", q.ID)
		}
	}

	_, _ = env.service.SubmitAttempt(ctx, env.account.ID, nil)
	if _, err := env.service.StartExam(ctx, env.account.ID); !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected already attempted, got %v", err)
	}
}

func TestSubmitAttemptPublishesToFeed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := app.NewSubmissionFeed()
	env.service.WithFeed(feed)

	ch, cancel := feed.Subscribe()
	defer cancel()

	if _, err := env.service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	select {
	case record := <-ch:
		if record.Username != "John Doe" || record.Score != 1 || len(record.Answers) != 2 {
			t.Fatalf("unexpected record %+v", record)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected record on feed")
	}
}

func TestSubmitAttemptExportsAfterCallerCancels(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts := &cancelAfterCommit{AccountStore: env.accounts, cancel: cancel}
	service := app.NewExamService(accounts, env.catalog, env.exporter).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) })

	result, err := service.SubmitAttempt(ctx, env.account.ID, map[int64]string{1: "A"})
	if err != nil {
		t.Fatalf("expected export to complete after cancel, got %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("expected the caller context to be canceled")
	}
	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("expected 1/2, got %+v", result)
	}

	table, err := env.log.Read(context.Background())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := []string{"2026-03-01 10:30:00", "John Doe", "A", "", "1", "2"}
	if len(table.Rows) != 1 || !equal(table.Rows[0], want) {
		t.Fatalf("expected row %v, got %v", want, table.Rows)
	}
}

func TestSubmitAttemptExportTimeoutKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	locker := export.NewMutexLocker()
	unlock, err := locker.Lock(context.Background())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	service := app.NewExamService(env.accounts, env.catalog, export.NewExporter(env.log, locker)).
		WithExportTimeout(20 * time.Millisecond)
	result, err := service.SubmitAttempt(context.Background(), env.account.ID, map[int64]string{2: "B"})
	var exportErr *domain.ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected export error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the export to time out, got %v", err)
	}
	if result.Score != 1 || exportErr.Record.Username != "John Doe" || len(exportErr.Record.Answers) != 2 {
		t.Fatalf("expected the committed record to be returned, got %+v / %+v", result, exportErr.Record)
	}
}

type testEnv struct {
	accounts *memory.AccountStore
	catalog  *memory.CatalogRepository
	log      *memory.SubmissionLog
	exporter *export.Exporter
	service  *app.ExamService
	account  domain.Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accounts := memory.NewAccountStore()
	account := accounts.AddAccount("John Doe", "hash")
	catalog := memory.NewCatalogRepository(memory.NewStaticQuestionLoader([]domain.Question{
		{ID: 1, Text: "Q one", OptionA: "a", OptionB: "b", OptionC: "c", CorrectAnswer: "A"},
		{ID: 2, Text: "Q two", OptionA: "a", OptionB: "b", OptionC: "c", CorrectAnswer: "B"},
	}), 5*time.Minute)
	log := memory.NewSubmissionLog()
	exporter := export.NewExporter(log, export.NewMutexLocker())
	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }
	service := app.NewExamService(accounts, catalog, exporter).WithClock(clock)
	return &testEnv{
		accounts: accounts,
		catalog:  catalog,
		log:      log,
		exporter: exporter,
		service:  service,
		account:  account,
	}
}

type flakyAccounts struct {
	*memory.AccountStore
	markErr error
}

func (f *flakyAccounts) MarkAttempted(ctx context.Context, id int64, score int) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.AccountStore.MarkAttempted(ctx, id, score)
}

// cancelAfterCommit cancels the caller's context as soon as the attempt is committed.
type cancelAfterCommit struct {
	*memory.AccountStore
	cancel context.CancelFunc
}

func (c *cancelAfterCommit) MarkAttempted(ctx context.Context, id int64, score int) error {
	err := c.AccountStore.MarkAttempted(ctx, id, score)
	c.cancel()
	return err
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
