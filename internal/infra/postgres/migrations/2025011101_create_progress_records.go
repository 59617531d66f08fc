package migrations

import _ "embed"

//go:embed 0002_create_progress_records.sql
var createProgressRecordsSQL string

func init() {
	Migrations.MustRegister(execSQL(createProgressRecordsSQL), dropTable("progress_records"))
}
