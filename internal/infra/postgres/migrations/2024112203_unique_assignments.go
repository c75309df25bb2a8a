package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS dpp_assignments_user_set_question_uidx
				ON dpp_assignments (user_id, dpp_id, question_id)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS dpp_assignments_user_set_question_uidx`)
			return err
		},
	)
}
