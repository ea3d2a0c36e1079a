// Package migrations embeds the schema migrations applied at startup.
//
// Files are named NNN_description.sql and applied in lexical order.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
