package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsDir is the root of the per dialect migration tree
const MigrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFS returns the migration tree with one directory per dialect
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, MigrationsDir)
}
