// Package migrations bundles the SQL schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds the ordered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
