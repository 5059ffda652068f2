// Package migrations embeds the mail outbox schema.
package migrations

import "embed"

// FS holds the outbox SQL migrations.
//
//go:embed *.sql
var FS embed.FS
