package local

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the fallback database at path and creates the schema. ":memory:"
// gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	dsn := "file::memory:?_foreign_keys=on"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seeded_users (
			user_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			user_id TEXT NOT NULL,
			id INTEGER NOT NULL,
			title TEXT NOT NULL,
			vendor TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			capacity TEXT NOT NULL DEFAULT '',
			current_price REAL NOT NULL DEFAULT 0,
			target_price REAL NOT NULL DEFAULT 0,
			expires_in TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'tracking',
			alert_status TEXT NOT NULL DEFAULT 'active',
			url TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			extracted_at TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id INTEGER NOT NULL,
			product_name TEXT NOT NULL,
			product_url TEXT NOT NULL,
			product_image_url TEXT NOT NULL DEFAULT '',
			current_price REAL NOT NULL,
			alert_type TEXT NOT NULL,
			notify_email INTEGER NOT NULL DEFAULT 0,
			notify_push INTEGER NOT NULL DEFAULT 0,
			notify_sms INTEGER NOT NULL DEFAULT 0,
			drop_percentage REAL NOT NULL DEFAULT 0,
			absolute_drop REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_checked_at TEXT NOT NULL,
			triggered_at TEXT,
			expires_at TEXT,
			FOREIGN KEY (user_id, product_id) REFERENCES products(user_id, id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS alert_history (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			old_price REAL,
			new_price REAL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
	}
	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
