package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var profileMigrations embed.FS

// MigrateProfiles applies the embedded profile schema to the database at
// dbPath and returns the resulting schema version. It runs on a connection of
// its own, apart from the repository's pool.
func MigrateProfiles(dbPath string) (uint, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open %s for migration: %w", dbPath, err)
	}
	defer conn.Close()

	target, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("sqlite migration target: %w", err)
	}
	source, err := iofs.New(profileMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("embedded profile migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return 0, fmt.Errorf("prepare profile migrations: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return 0, fmt.Errorf("apply profile migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read profile schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("profile schema version %d is dirty", version)
	}
	slog.Info("Profile schema ready", "path", dbPath, "version", version)
	return version, nil
}
