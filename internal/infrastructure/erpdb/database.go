package erpdb

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

// Sessions holds the two ERP database connections. Lookups run on the
// read-only session; the direct status corrections run on the read-write
// session, which uses a separately privileged account.
type Sessions struct {
	ReadOnly  *gorm.DB
	ReadWrite *gorm.DB
}

// Open connects both ERP sessions and verifies them with a ping
func Open(cfg config.ERPDBConfig) (*Sessions, error) {
	ro, err := openSession(cfg.ReadOnlyDSN)
	if err != nil {
		return nil, fmt.Errorf("erpdb: open read-only session: %w", err)
	}

	rw, err := openSession(cfg.ReadWriteDSN)
	if err != nil {
		closeDB(ro)
		return nil, fmt.Errorf("erpdb: open read-write session: %w", err)
	}

	return &Sessions{ReadOnly: ro, ReadWrite: rw}, nil
}

func openSession(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return db, nil
}

// Close closes both sessions, returning the first error encountered
func (s *Sessions) Close() error {
	var firstErr error
	for _, db := range []*gorm.DB{s.ReadOnly, s.ReadWrite} {
		if db == nil {
			continue
		}
		if err := closeDB(db); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
