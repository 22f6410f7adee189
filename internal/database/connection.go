package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// Connect opens the database, applies connection settings and makes sure
// the schema exists. dbType is "sqlite" or "postgres"; dsn is a file path
// for SQLite and a connection URL for PostgreSQL.
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	driver, err := driverFor(dbType)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite && dsn != ":memory:" {
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := InitializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func driverFor(dbType string) (string, error) {
	switch dbType {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

// dialect holds the column types that differ between drivers
type dialect struct {
	serial    string
	timestamp string
	real      string
}

func dialectFor(driver string) dialect {
	if driver == DriverPostgres {
		return dialect{serial: "BIGSERIAL PRIMARY KEY", timestamp: "TIMESTAMPTZ", real: "DOUBLE PRECISION"}
	}
	return dialect{serial: "INTEGER PRIMARY KEY AUTOINCREMENT", timestamp: "TIMESTAMP", real: "REAL"}
}

// InitializeSchema creates the tables and indexes if they don't exist
func InitializeSchema(db *sqlx.DB) error {
	d := dialectFor(db.DriverName())

	statements := []struct {
		name  string
		query string
	}{
		{"knowledge_items table", `
			CREATE TABLE IF NOT EXISTS knowledge_items (
				id ` + d.serial + `,
				user_id INTEGER NOT NULL,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at ` + d.timestamp + ` NOT NULL
			)`},
		{"knowledge_items index", `
			CREATE INDEX IF NOT EXISTS idx_knowledge_items_user
			ON knowledge_items (user_id, is_active)`},
		{"review_schedules table", `
			CREATE TABLE IF NOT EXISTS review_schedules (
				id ` + d.serial + `,
				knowledge_item_id INTEGER NOT NULL REFERENCES knowledge_items (id),
				user_id INTEGER NOT NULL,
				stage INTEGER NOT NULL,
				due_at ` + d.timestamp + ` NOT NULL,
				completed BOOLEAN NOT NULL DEFAULT FALSE,
				created_at ` + d.timestamp + ` NOT NULL
			)`},
		{"review_schedules due index", `
			CREATE INDEX IF NOT EXISTS idx_review_schedules_due
			ON review_schedules (user_id, completed, due_at)`},
		// at most one open schedule per item
		{"review_schedules open index", `
			CREATE UNIQUE INDEX IF NOT EXISTS ux_review_schedules_open
			ON review_schedules (knowledge_item_id) WHERE completed = FALSE`},
		{"review_records table", `
			CREATE TABLE IF NOT EXISTS review_records (
				id ` + d.serial + `,
				knowledge_item_id INTEGER NOT NULL REFERENCES knowledge_items (id),
				schedule_id INTEGER NOT NULL UNIQUE REFERENCES review_schedules (id),
				user_id INTEGER NOT NULL,
				effectiveness INTEGER NOT NULL,
				recall_score ` + d.real + ` NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				reviewed_at ` + d.timestamp + ` NOT NULL
			)`},
		{"review_records index", `
			CREATE INDEX IF NOT EXISTS idx_review_records_user
			ON review_records (user_id, reviewed_at)`},
		{"reminder_settings table", `
			CREATE TABLE IF NOT EXISTS reminder_settings (
				user_id INTEGER PRIMARY KEY,
				interval_seconds INTEGER NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				start_hour INTEGER NOT NULL DEFAULT 0,
				end_hour INTEGER NOT NULL DEFAULT 23,
				updated_at ` + d.timestamp + ` NOT NULL
			)`},
	}

	for _, st := range statements {
		if _, err := db.Exec(st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
