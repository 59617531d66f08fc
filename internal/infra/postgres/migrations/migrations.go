// Package migrations holds the Postgres schema for quiz content and progress
// records, applied with bun's migrator. Each numbered file registers one step;
// bun derives the migration name from the registering file.
package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

func execSQL(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, query)
		return err
	}
}

func dropTable(table string) migrate.MigrationFunc {
	return execSQL(`DROP TABLE IF EXISTS ` + table)
}
