// Package migrations embeds the PostgreSQL schema so the binary can
// migrate a database without the source tree.
package migrations

import "embed"

// FS holds the numbered .sql files.
//
//go:embed *.sql
var FS embed.FS
