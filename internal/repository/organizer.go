package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atinyakov/CoOrganizer/internal/codec"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/google/uuid"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// OrganizerRepository stores imported transactions. Each item is kept in its
// wire form next to a few columns used for listing.
type OrganizerRepository struct {
	// DB is the database handle for executing queries.
	DB      *sql.DB
	dialect Dialect
	codec   *codec.Codec
	now     func() time.Time
	newID   func() string
}

// NewOrganizerRepository creates an organizer store for the given dialect.
func NewOrganizerRepository(db *sql.DB, dialect Dialect) *OrganizerRepository {
	return &OrganizerRepository{
		DB:      db,
		dialect: dialect,
		codec:   codec.New(nil),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Forward persists one transaction.
func (r *OrganizerRepository) Forward(ctx context.Context, tx models.Transaction) error {
	encoded, err := r.codec.Encode([]models.Transaction{tx})
	if err != nil {
		return fmt.Errorf("forward: %w", err)
	}

	status := 0
	if tx.HasResponse() {
		status = tx.Response.StatusCode
	}
	var notes, color string
	if tx.Annotations != nil {
		notes = tx.Annotations.Notes
		color = string(tx.Annotations.HighlightColor)
	}

	_, err = r.DB.ExecContext(ctx, r.dialect.rebind(`
		INSERT INTO organizer_items (id, method, url, status_code, item, notes, highlight_color, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`), r.newID(), tx.Request.Method, tx.Request.URL, status, string(encoded), notes, color, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	return nil
}

// List returns the most recent imports, newest first.
func (r *OrganizerRepository) List(ctx context.Context, limit int) ([]models.OrganizerItem, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.DB.QueryContext(ctx, r.dialect.rebind(`
		SELECT id, item, imported_at FROM organizer_items ORDER BY imported_at DESC LIMIT $1
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list organizer items: %w", err)
	}
	defer rows.Close()

	var items []models.OrganizerItem
	for rows.Next() {
		var (
			id, item string
			at       int64
		)
		if err := rows.Scan(&id, &item, &at); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res, err := r.codec.Decode([]byte(item))
		if err != nil || len(res.Transactions) != 1 {
			return nil, fmt.Errorf("organizer item %s is corrupt: %v", id, err)
		}
		items = append(items, models.OrganizerItem{
			ID:          id,
			Transaction: res.Transactions[0],
			ImportedAt:  time.UnixMilli(at),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organizer items: %w", err)
	}
	return items, nil
}

// Prune deletes imports older than before and reports how many were removed.
func (r *OrganizerRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.dialect.rebind(`DELETE FROM organizer_items WHERE imported_at < $1`), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune organizer items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
