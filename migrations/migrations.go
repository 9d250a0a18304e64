// Package migrations embeds the manifest schema so the migrate command does not depend on the working directory.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed *.sql
var files embed.FS

// Load returns the SQL for the given migration name and direction ("up" or "down").
func Load(name, direction string) (string, error) {
	if direction != "up" && direction != "down" {
		return "", fmt.Errorf("unknown migration direction %q", direction)
	}
	b, err := files.ReadFile(fmt.Sprintf("%s.%s.sql", name, direction))
	if err != nil {
		return "", fmt.Errorf("migration %s (%s): %w", name, direction, err)
	}
	return string(b), nil
}

// Names lists the migrations in apply order.
func Names() []string {
	return []string{"001_create_manifest"}
}
