// Package migrations embeds the SQL schema migrations applied by the
// Postgres refresh store through goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
