// Package migrations bundles the SQLite schema applied at store open.
package migrations

import "embed"

// FS holds the ordered migration files.
//
//go:embed *.sql
var FS embed.FS
