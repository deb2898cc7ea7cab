package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the audit table when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_audit (
			id          UUID PRIMARY KEY,
			kind        TEXT NOT NULL,
			sheet_id    TEXT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			detail      JSONB,
			occurred_at TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Write inserts an event. Redelivered events are ignored.
func (r *Repository) Write(ctx context.Context, evt Event) error {
	if evt.ID == "" || evt.SheetID == "" {
		return errors.New("audit event id and sheet id required")
	}
	detail, err := json.Marshal(evt.Detail)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, kind, sheet_id, actor, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, string(evt.Kind), evt.SheetID, evt.Actor, detail, evt.At)
	return err
}

// ListBySheet returns the newest events for a spreadsheet.
func (r *Repository) ListBySheet(ctx context.Context, sheetID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, sheet_id, actor, detail, occurred_at
		FROM attendance_audit
		WHERE sheet_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, sheetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Event
	for rows.Next() {
		var (
			evt    Event
			kind   string
			detail []byte
			at     time.Time
		)
		if err := rows.Scan(&evt.ID, &kind, &evt.SheetID, &evt.Actor, &detail, &at); err != nil {
			return nil, err
		}
		evt.Kind = Kind(kind)
		evt.At = at
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &evt.Detail)
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}
