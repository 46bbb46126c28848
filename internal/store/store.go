// Package store provides the persistence adapters behind kalshorb.Store.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kalshorb/pkg/kalshorb"
)

// Supported drivers.
const (
	DriverAuto      = "auto"
	DriverSQLite    = "sqlite"
	DriverPostgREST = "postgrest"
	DriverNone      = "none"
)

// Config selects a store driver.
type Config struct {
	Driver     string
	SQLitePath string
	URL        string
	ServiceKey string
	Timeout    time.Duration
}

// Drivers lists the accepted driver names.
func Drivers() []string {
	return []string{DriverAuto, DriverSQLite, DriverPostgREST, DriverNone}
}

// Resolve returns the concrete driver for cfg. Auto picks PostgREST when
// credentials are present and SQLite otherwise.
func Resolve(cfg Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver != "" && driver != DriverAuto {
		return driver
	}
	if cfg.URL != "" && cfg.ServiceKey != "" {
		return DriverPostgREST
	}
	return DriverSQLite
}

// Open builds the configured store. The returned close function is never nil.
// DriverNone yields a nil Store.
func Open(cfg Config, logger *slog.Logger) (kalshorb.Store, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = slog.Default()
	}

	switch driver := Resolve(cfg); driver {
	case DriverNone:
		return nil, noop, nil
	case DriverPostgREST:
		s, err := NewPostgREST(PostgRESTOptions{
			URL:        cfg.URL,
			ServiceKey: cfg.ServiceKey,
			Timeout:    cfg.Timeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case DriverSQLite:
		s, err := OpenSQLite(SQLiteOptions{Path: cfg.SQLitePath, Logger: logger})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
