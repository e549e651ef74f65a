package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"alertrelay/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ClickHouseStore is the production row store over the analytics
// warehouse.
type ClickHouseStore struct {
	conn   driver.Conn
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// NewClickHouseStore connects to ClickHouse, verifies the connection
// and makes sure the results database and alerts table exist.
func NewClickHouseStore(cfg *config.Config, logger *zap.SugaredLogger) (*ClickHouseStore, error) {
	options := &clickhouse.Options{
		Addr: []string{cfg.Store.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ResultsSchema,
			Username: cfg.Store.ClickHouse.Username,
			Password: cfg.Store.ClickHouse.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:     cfg.Store.ClickHouse.MaxPoolSize,
		MaxIdleConns:     cfg.Store.ClickHouse.MaxPoolSize / 2,
		ConnMaxLifetime:  1 * time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			d.Timeout = 10 * time.Second
			d.KeepAlive = 30 * time.Second
			return d.DialContext(ctx, "tcp", addr)
		},
	}

	if cfg.Store.ClickHouse.TLS {
		options.TLS = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("Connected to ClickHouse")

	store := &ClickHouseStore{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}

	if err := store.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure alerts schema: %w", err)
	}

	return store, nil
}

// ensureSchema creates the results database and alerts table if absent.
func (s *ClickHouseStore) ensureSchema(ctx context.Context) error {
	if err := validateIdentifier(s.cfg.ResultsSchema); err != nil {
		return fmt.Errorf("invalid results schema name: %w", err)
	}
	if err := validateIdentifier(s.cfg.AlertsTable); err != nil {
		return fmt.Errorf("invalid alerts table name: %w", err)
	}

	createDB := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", s.cfg.ResultsSchema)
	if err := s.conn.Exec(ctx, createDB); err != nil {
		return fmt.Errorf("failed to create results database: %w", err)
	}

	createTable := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		alert String,
		alert_time DateTime64(3, 'UTC'),
		event_time DateTime64(3, 'UTC'),
		ticket Nullable(String),
		suppressed Bool DEFAULT false,
		suppression_rule String DEFAULT '',
		correlation_id String DEFAULT '',
		counter UInt64 DEFAULT 1,
		INDEX idx_alert_id JSONExtractString(alert, 'ALERT_ID') TYPE bloom_filter(0.01) GRANULARITY 1
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(alert_time)
	ORDER BY (event_time)
	SETTINGS index_granularity = 8192
	`, s.tableRef())

	if err := s.conn.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}

	s.logger.Infof("Alerts table %s is ready", s.tableRef())
	return nil
}

// tableRef returns the validated `schema.table` reference used in
// statements. Both parts pass validateIdentifier before this is built.
func (s *ClickHouseStore) tableRef() string {
	return fmt.Sprintf("`%s`.`%s`", s.cfg.ResultsSchema, s.cfg.AlertsTable)
}

// Execute runs a parameterized statement with no result rows.
func (s *ClickHouseStore) Execute(ctx context.Context, stmt string, args ...interface{}) error {
	if err := s.conn.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// HealthCheck pings the warehouse connection.
func (s *ClickHouseStore) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the warehouse connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
