// Package assets embeds the files shipped within the binaries: SQL migrations, email templates
// & the common passwords list.
package assets

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt.gz
var FS embed.FS

const (
	// MigrationsDir is the migrations directory within FS.
	MigrationsDir = "migrations"

	CommonPasswordsFile = "common-passwords.txt.gz"
)
