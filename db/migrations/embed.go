package migrations

import "embed"

// Files embeds the migrations of every supported dialect, one directory each.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
