package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// AutoMigrate creates the presence ledger. Rows are keyed by (room, name);
// the ledger is an audit trail only and never used to rebuild rooms.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_users (
            id SERIAL PRIMARY KEY,
            name VARCHAR(128) NOT NULL,
            room VARCHAR(128) NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_room_name ON chat_users (room, name)`,
		`CREATE INDEX IF NOT EXISTS idx_users_active_room ON chat_users (is_active, room)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}
