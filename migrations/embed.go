// Package migrations holds the postgres schema migrations.
package migrations

import "embed"

// FS contains every *.sql migration, served to golang-migrate through iofs
//
//go:embed *.sql
var FS embed.FS
