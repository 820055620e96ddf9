// Package storage holds the Postgres repositories of the calendar sync service.
package storage

import (
	"embed"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// Migrations is applied at startup through libs/db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

var ErrNotFound = model.ErrNotFound

// ErrCalendarTaken means another tenant already syncs the calendar.
var ErrCalendarTaken = model.ErrCalendarTaken

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
