// internal/db/db.go
package db

import (
	"fmt"

	"github.com/unclebandit/salon-messaging/internal/config"
)

// Open returns the Store selected by STORE_DRIVER.
func Open(cfg *config.Settings) (Store, error) {
	switch cfg.StoreDriver {
	case "", "file":
		return NewFileStore(cfg.DataDir)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
