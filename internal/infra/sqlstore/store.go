package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cbt-exam-service/internal/domain"
	"github.com/uptrace/bun"
)

// Store persists accounts and questions through bun. It implements
// app.AccountRepository, app.SeedStore and memory.QuestionLoader.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	var row accountRow
	err := s.db.NewSelect().Model(&row).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindAccount(ctx context.Context, username string) (domain.Account, error) {
	var row accountRow
	err := s.db.NewSelect().Model(&row).Where("a.username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("find account: %w", err)
	}
	return row.toDomain(), nil
}

// MarkAttempted is a conditional update on the attempted flag, so concurrent
// attempts from any number of server processes see exactly one winner.
func (s *Store) MarkAttempted(ctx context.Context, id int64, score int) error {
	res, err := s.db.NewUpdate().
		Model((*accountRow)(nil)).
		Set("attempted = ?", true).
		Set("score = ?", score).
		Where("id = ?", id).
		Where("attempted = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark attempted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark attempted: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the account is gone or another attempt won.
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return domain.ErrAlreadyAttempted
}

// LoadQuestions returns the catalog ordered by id.
func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	var rows []questionRow
	if err := s.db.NewSelect().Model(&rows).Order("q.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.toDomain())
	}
	return questions, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*accountRow)(nil)).Count(ctx)
}

func (s *Store) CountQuestions(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*questionRow)(nil)).Count(ctx)
}

func (s *Store) InsertAccounts(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]accountRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, accountRow{Username: a.Username, PasswordHash: a.PasswordHash})
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

// InsertQuestions keeps the given order, so ids follow the seed file.
func (s *Store) InsertQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, q := range questions {
			row := questionRow{
				ID:            q.ID,
				Text:          q.Text,
				OptionA:       q.OptionA,
				OptionB:       q.OptionB,
				OptionC:       q.OptionC,
				CorrectAnswer: q.CorrectAnswer,
			}
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return fmt.Errorf("insert question %q: %w", q.Text, err)
			}
		}
		return nil
	})
}
