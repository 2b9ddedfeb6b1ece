// Package migrations embeds the postgres schema migrations so the server and
// migrate binaries do not depend on the working directory.
package migrations

import "embed"

// FS holds every *.sql migration
//
//go:embed *.sql
var FS embed.FS
