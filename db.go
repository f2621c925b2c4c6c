package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shotlog/pkg/config"
	"shotlog/pkg/store"
)

// initDB opens the configured database and, unless disabled, migrates the schema.
func initDB(cfg config.DatabaseConfig, log *slog.Logger, migrate bool) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database.dsn is not set (SHOTLOG_DATABASE_DSN or DB_DSN)")
	}
	db, err := store.Open(cfg.Driver, cfg.DSN, gormLogLevel(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(db); err != nil {
			return nil, err
		}
		log.Info("schema migrated", "driver", cfg.Driver)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func gormLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// ensureMediaRoot creates the base directory for stored shot images.
func ensureMediaRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create media root %s: %w", root, err)
	}
	return nil
}
