package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLPreferences is a key-value preference store in the preferences table.
type SQLPreferences struct {
	// DB is the database handle for executing queries.
	DB      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewPostgresPreferences creates a preference store on a PostgreSQL connection.
func NewPostgresPreferences(db *sql.DB) *SQLPreferences {
	return &SQLPreferences{DB: db, dialect: DialectPostgres, now: time.Now}
}

// NewSQLitePreferences creates a preference store on a SQLite connection.
func NewSQLitePreferences(db *sql.DB) *SQLPreferences {
	return &SQLPreferences{DB: db, dialect: DialectSQLite, now: time.Now}
}

// GetString returns the stored value and whether the key exists.
func (p *SQLPreferences) GetString(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.DB.QueryRowContext(ctx,
		p.dialect.rebind(`SELECT value FROM preferences WHERE key = $1`),
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, true, nil
}

// SetString stores value under key, replacing any previous value in one statement.
func (p *SQLPreferences) SetString(ctx context.Context, key, value string) error {
	_, err := p.DB.ExecContext(ctx, p.dialect.rebind(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`), key, value, p.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *SQLPreferences) Delete(ctx context.Context, key string) error {
	_, err := p.DB.ExecContext(ctx, p.dialect.rebind(`DELETE FROM preferences WHERE key = $1`), key)
	if err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}
