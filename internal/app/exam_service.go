package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/export"
	"golang.org/x/sync/errgroup"
)

// AccountRepository abstracts the durable account store (SQL, in-memory).
type AccountRepository interface {
	GetAccount(ctx context.Context, id int64) (domain.Account, error)
	FindAccount(ctx context.Context, username string) (domain.Account, error)
	// MarkAttempted records the score only if the account has not attempted yet.
	// It returns domain.ErrAlreadyAttempted when another attempt won the race.
	MarkAttempted(ctx context.Context, id int64, score int) error
}

// QuestionRepository loads the answer key (from cache/backing store).
type QuestionRepository interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// SubmissionExporter appends graded attempts to the durable export log.
type SubmissionExporter interface {
	AppendSubmission(ctx context.Context, record domain.SubmissionRecord) error
}

// ExamService contains the exam attempt use cases.
type ExamService struct {
	accounts  AccountRepository
	questions QuestionRepository
	exporter  SubmissionExporter
	feed      *SubmissionFeed
	now       func() time.Time

	exportTimeout time.Duration
}

func NewExamService(accounts AccountRepository, questions QuestionRepository, exporter SubmissionExporter) *ExamService {
	return &ExamService{
		accounts:  accounts,
		questions: questions,
		exporter:  exporter,
		now:       time.Now,

		exportTimeout: 30 * time.Second,
	}
}

// WithExportTimeout bounds how long a committed attempt may wait for the export log.
func (s *ExamService) WithExportTimeout(d time.Duration) *ExamService {
	if d > 0 {
		s.exportTimeout = d
	}
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *ExamService) WithClock(now func() time.Time) *ExamService {
	s.now = now
	return s
}

// WithFeed publishes every committed submission to feed.
func (s *ExamService) WithFeed(feed *SubmissionFeed) *ExamService {
	s.feed = feed
	return s
}

// StartExam returns the catalog without answer keys for an account that may still attempt.
func (s *ExamService) StartExam(ctx context.Context, accountID int64) ([]domain.Question, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storageErr("load account", err)
	}
	if account.Attempted {
		return nil, domain.ErrAlreadyAttempted
	}

	catalog, err := s.questions.GetCatalog(ctx)
	if err != nil {
		return nil, storageErr("load catalog", err)
	}
	questions := make([]domain.Question, 0, catalog.Len())
	for _, q := range catalog.Questions {
		questions = append(questions, q.Public())
	}
	return questions, nil
}

// SubmitAttempt grades answers against the catalog and commits the result exactly once
// per account. If the commit succeeds but the export does not, the populated result is
// returned together with a *domain.ExportError.
func (s *ExamService) SubmitAttempt(ctx context.Context, accountID int64, answers map[int64]string) (domain.AttemptResult, error) {
	var (
		account domain.Account
		catalog domain.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = s.accounts.GetAccount(gctx, accountID)
		return storageErr("load account", err)
	})
	g.Go(func() error {
		var err error
		catalog, err = s.questions.GetCatalog(gctx)
		return storageErr("load catalog", err)
	})
	if err := g.Wait(); err != nil {
		return domain.AttemptResult{}, err
	}

	if account.Attempted {
		return domain.AttemptResult{}, domain.ErrAlreadyAttempted
	}

	score, selected := grade(catalog, answers)
	if err := s.accounts.MarkAttempted(ctx, account.ID, score); err != nil {
		return domain.AttemptResult{}, storageErr("commit attempt", err)
	}

	result := domain.AttemptResult{Score: score, Total: catalog.Len()}
	record := domain.SubmissionRecord{
		Timestamp: s.now(),
		Username:  account.Username,
		Answers:   selected,
		Score:     score,
		Total:     result.Total,
	}
	if s.feed != nil {
		s.feed.Publish(record)
	}

	// The attempt is committed; the export must finish even if the caller goes away.
	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.exportTimeout)
	defer cancel()
	if err := s.exporter.AppendSubmission(exportCtx, record); err != nil {
		var exportErr *domain.ExportError
		if !errors.As(err, &exportErr) {
			exportErr = &domain.ExportError{Record: record, Err: err}
		}
		columns, values := export.Row(record)
		log.Printf("attempt committed but not exported: %v; columns=%q values=%q", exportErr.Err, columns, values)
		return result, exportErr
	}
	return result, nil
}

// grade walks the whole catalog so unanswered and unknown ids are handled uniformly.
func grade(catalog domain.Catalog, answers map[int64]string) (int, []domain.SelectedAnswer) {
	score := 0
	selected := make([]domain.SelectedAnswer, 0, catalog.Len())
	for _, q := range catalog.Questions {
		label, ok := answers[q.ID]
		if ok && label == q.CorrectAnswer {
			score++
		}
		selected = append(selected, domain.SelectedAnswer{
			QuestionID: q.ID,
			Label:      label,
			Answered:   ok && label != "",
		})
	}
	return score, selected
}

// storageErr passes expected outcomes through and marks everything else retryable.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrAlreadyAttempted),
		errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
	}
}
