package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema for tests, purchases and attempts. Each migration lives in
// its own file; bun derives the migration name from that file name.
var Migrations = migrate.NewMigrations()
