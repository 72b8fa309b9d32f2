// Package migrations embeds the goose SQL migration files.
//
// Files are named YYYYMMDDHHMMSS_description.sql and applied in order when
// the service starts with a database configured.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
