package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112202_create_ledger.up.sql
var createLedgerSQL string

//go:embed 2024112202_create_ledger.down.sql
var dropLedgerSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createLedgerSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropLedgerSQL)
			return err
		},
	)
}
