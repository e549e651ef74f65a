package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"alertrelay/config"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the local development and test row store. It mirrors
// the warehouse table shape so the relay behaves identically against
// either backend.
type SQLiteStore struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// sqliteTimeFormat is fixed-width so lexical ordering matches time
// ordering in the event_time index.
const sqliteTimeFormat = "2006-01-02 15:04:05.000"

// NewSQLiteStore opens (creating if needed) the SQLite database and
// ensures the alerts table exists.
func NewSQLiteStore(cfg *config.Config, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	path := cfg.Store.SQLite.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// WAL keeps reads concurrent with the single writer; the busy
	// timeout avoids immediate SQLITE_BUSY on overlapping statements.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	store := &SQLiteStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("SQLite row store ready at %s", path)
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	if err := validateIdentifier(s.cfg.AlertsTable); err != nil {
		return fmt.Errorf("invalid alerts table name: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		alert TEXT NOT NULL,
		alert_time TEXT NOT NULL,
		event_time TEXT NOT NULL,
		ticket TEXT,
		suppressed INTEGER NOT NULL DEFAULT 0,
		suppression_rule TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		counter INTEGER NOT NULL DEFAULT 1
	)`, s.cfg.AlertsTable)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_event_time ON %s(event_time)`,
			s.cfg.AlertsTable, s.cfg.AlertsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_alert_id ON %s(json_extract(alert, '$.ALERT_ID'))`,
			s.cfg.AlertsTable, s.cfg.AlertsTable),
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create alerts index: %w", err)
		}
	}

	return nil
}

// Execute runs a parameterized statement with no result rows.
func (s *SQLiteStore) Execute(ctx context.Context, stmt string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
