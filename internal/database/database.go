package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent reservations.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}

	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS slots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            placement TEXT NOT NULL,
            date DATETIME NOT NULL,
            position INTEGER NOT NULL,
            price INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'available',
            lock_holder INTEGER,
            lock_expiry DATETIME,
            banner_id INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(placement, date, position)
        )`,

		`CREATE TABLE IF NOT EXISTS applications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            applicant_id INTEGER NOT NULL,
            placement TEXT NOT NULL,
            title TEXT NOT NULL,
            image_url TEXT NOT NULL DEFAULT '',
            link_url TEXT NOT NULL DEFAULT '',
            total_amount INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            approver_id INTEGER,
            approved_at DATETIME,
            idempotency_key TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS application_slots (
            application_id INTEGER NOT NULL,
            slot_id INTEGER NOT NULL,
            price_snapshot INTEGER NOT NULL,
            PRIMARY KEY (application_id, slot_id)
        )`,

		`CREATE TABLE IF NOT EXISTS banners (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            application_id INTEGER NOT NULL,
            slot_id INTEGER NOT NULL,
            placement TEXT NOT NULL,
            date DATETIME NOT NULL,
            position INTEGER NOT NULL,
            title TEXT NOT NULL,
            image_url TEXT NOT NULL DEFAULT '',
            link_url TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_slots_placement_date ON slots(placement, date)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_status ON slots(status)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_lock_expiry ON slots(lock_expiry)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_applicant ON applications(applicant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_idempotency
            ON applications(idempotency_key) WHERE idempotency_key != ''`,
		`CREATE INDEX IF NOT EXISTS idx_application_slots_slot ON application_slots(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_banners_application ON banners(application_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
