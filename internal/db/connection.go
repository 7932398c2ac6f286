package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/claims-recal/internal/config"
)

// Connection holds the database connection
type Connection struct {
	DB *sql.DB
}

// NewConnection creates a new database connection from PG* environment
// variables, falling back to local development defaults.
func NewConnection() (*Connection, error) {
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "claims")
	password := config.GetEnv("PGPASSWORD", "claims")
	dbname := config.GetEnv("PGDATABASE", "claims_analytics")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(10)

	return &Connection{DB: conn}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}
