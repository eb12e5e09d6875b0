// Package migrations embeds the device store schema into the binary.
//
// Import it for its side effect wherever database.Migrate runs:
//
//	import _ "github.com/nerrad567/blegate/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/blegate/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
