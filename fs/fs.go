// Package appfs embeds the database migrations and email templates.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS
