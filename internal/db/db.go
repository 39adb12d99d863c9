package db

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/unclebandit/campaign-engine/internal/config"
)

// Connect opens and pings the Postgres pool.
func Connect(cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
