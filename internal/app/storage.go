package app

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/CoOrganizer/internal/db"
	"github.com/atinyakov/CoOrganizer/internal/repository"
	"github.com/atinyakov/CoOrganizer/internal/service"
)

const sqliteScheme = "sqlite://"

// storage is the durable side of an App: preferences plus the database the
// organizer lives in.
type storage struct {
	prefs     service.Preferences
	db        *sql.DB
	dialect   repository.Dialect
	organizer *repository.OrganizerRepository
}

// openStorage interprets a preferences location:
//
//	postgres://... or postgresql://...  preferences and organizer in Postgres
//	sqlite://path                       preferences and organizer in SQLite
//	anything else                       a JSON preferences file, with the
//	                                    organizer in organizer.db beside it
func openStorage(location string) (*storage, error) {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		conn, err := db.InitPostgres(location)
		if err != nil {
			return nil, fmt.Errorf("open postgres preferences: %w", err)
		}
		return &storage{
			prefs:     repository.NewPostgresPreferences(conn),
			db:        conn,
			dialect:   repository.DialectPostgres,
			organizer: repository.NewOrganizerRepository(conn, repository.DialectPostgres),
		}, nil

	case strings.HasPrefix(location, sqliteScheme):
		conn, err := db.InitSQLite(strings.TrimPrefix(location, sqliteScheme))
		if err != nil {
			return nil, fmt.Errorf("open sqlite preferences: %w", err)
		}
		return &storage{
			prefs:     repository.NewSQLitePreferences(conn),
			db:        conn,
			dialect:   repository.DialectSQLite,
			organizer: repository.NewOrganizerRepository(conn, repository.DialectSQLite),
		}, nil

	default:
		if location == "" {
			return nil, errors.New("preferences location is empty")
		}
		dir := filepath.Dir(location)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		conn, err := db.InitSQLite(filepath.Join(dir, "organizer.db"))
		if err != nil {
			return nil, fmt.Errorf("open organizer: %w", err)
		}
		return &storage{
			prefs:     repository.NewFilePreferences(location),
			db:        conn,
			dialect:   repository.DialectSQLite,
			organizer: repository.NewOrganizerRepository(conn, repository.DialectSQLite),
		}, nil
	}
}

func (s *storage) Close() error {
	return s.db.Close()
}
