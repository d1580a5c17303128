// Package migrations embeds the State Store's schema so ape-cli can apply
// it without a separate migration tool on the deployment path.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
