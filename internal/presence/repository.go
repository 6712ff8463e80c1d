package presence

import (
	"context"
	"database/sql"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordJoin marks name active in room, creating the row on first sight.
func (r *Repository) RecordJoin(ctx context.Context, room, name string, at time.Time) error {
	query := `
		INSERT INTO chat_users (room, name, joined_at, last_seen, is_active)
		VALUES ($1, $2, $3, $3, TRUE)
		ON CONFLICT (room, name)
		DO UPDATE SET last_seen = EXCLUDED.last_seen, is_active = TRUE
	`
	_, err := r.db.ExecContext(ctx, query, room, name, at)
	return err
}

// RecordLeave marks name inactive in room.
func (r *Repository) RecordLeave(ctx context.Context, room, name string, at time.Time) error {
	query := `
		INSERT INTO chat_users (room, name, joined_at, last_seen, is_active)
		VALUES ($1, $2, $3, $3, FALSE)
		ON CONFLICT (room, name)
		DO UPDATE SET last_seen = EXCLUDED.last_seen, is_active = FALSE
	`
	_, err := r.db.ExecContext(ctx, query, room, name, at)
	return err
}

// ResetAll marks everyone offline. Run at startup: rooms never survive a restart.
func (r *Repository) ResetAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE chat_users SET is_active = FALSE WHERE is_active")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) ListByRoom(ctx context.Context, room string, activeOnly bool) ([]Record, error) {
	q := `
		SELECT id, name, room, joined_at, last_seen, is_active
		FROM chat_users
		WHERE room = $1 AND (NOT $2 OR is_active)
		ORDER BY last_seen DESC
		LIMIT 100
	`
	rows, err := r.db.QueryContext(ctx, q, room, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Room, &rec.JoinedAt, &rec.LastSeen, &rec.IsActive); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
