package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

type account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Username     string `bun:"username,notnull,unique"`
	PasswordHash string `bun:"password_hash,notnull"`
	Attempted    bool   `bun:"attempted,notnull,default:false"`
	Score        *int   `bun:"score"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewCreateTable().Model((*account)(nil)).IfNotExists().Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().Model((*account)(nil)).IfExists().Exec(ctx)
			return err
		},
	)
}
