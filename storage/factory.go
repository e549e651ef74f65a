package storage

import (
	"fmt"

	"alertrelay/config"

	"go.uber.org/zap"
)

// NewRowStore builds the row store selected by configuration.
func NewRowStore(cfg *config.Config, logger *zap.SugaredLogger) (RowStore, error) {
	switch cfg.Store.Backend {
	case config.BackendClickHouse:
		return NewClickHouseStore(cfg, logger)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
