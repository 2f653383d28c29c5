package sqlstore

import (
	"github.com/uptrace/bun"

	"cbt-exam-service/internal/domain"
)

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Username     string `bun:"username,notnull"`
	PasswordHash string `bun:"password_hash,notnull"`
	Attempted    bool   `bun:"attempted,notnull"`
	Score        *int   `bun:"score"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Attempted:    r.Attempted,
		Score:        r.Score,
	}
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Text          string `bun:"text,notnull"`
	OptionA       string `bun:"option_a"`
	OptionB       string `bun:"option_b"`
	OptionC       string `bun:"option_c"`
	CorrectAnswer string `bun:"correct_answer,notnull"`
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:            r.ID,
		Text:          r.Text,
		OptionA:       r.OptionA,
		OptionB:       r.OptionB,
		OptionC:       r.OptionC,
		CorrectAnswer: r.CorrectAnswer,
	}
}
