package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

type question struct {
	bun.BaseModel `bun:"table:questions"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Text          string `bun:"text,notnull"`
	OptionA       string `bun:"option_a"`
	OptionB       string `bun:"option_b"`
	OptionC       string `bun:"option_c"`
	CorrectAnswer string `bun:"correct_answer,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewCreateTable().Model((*question)(nil)).IfNotExists().Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().Model((*question)(nil)).IfExists().Exec(ctx)
			return err
		},
	)
}
