// Package storetest opens isolated in-memory sqlite databases carrying the
// fieldops schema for service and repository tests.
package storetest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE meters (
		id TEXT PRIMARY KEY,
		serial_number TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		meter_type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'active',
		last_reading TEXT,
		estimated_time INTEGER NOT NULL DEFAULT 30,
		owner_name TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_meters_serial_number ON meters(serial_number)`,
	`CREATE TABLE agents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		current_load INTEGER NOT NULL DEFAULT 0 CHECK (current_load >= 0),
		max_load INTEGER NOT NULL DEFAULT 10 CHECK (max_load >= 1),
		status TEXT NOT NULL DEFAULT 'available',
		latitude REAL,
		longitude REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_agents_user_id ON agents(user_id)`,
	`CREATE TABLE meter_assignments (
		id TEXT PRIMARY KEY,
		meter_id TEXT NOT NULL REFERENCES meters(id),
		agent_id TEXT NOT NULL REFERENCES agents(id),
		assigned_by TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		estimated_time INTEGER NOT NULL DEFAULT 30,
		assigned_at DATETIME NOT NULL,
		completed_at DATETIME,
		completion_notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_meter_assignments_active
		ON meter_assignments(meter_id)
		WHERE status IN ('pending', 'in_progress')`,
	`CREATE TABLE meter_approval_requests (
		id TEXT PRIMARY KEY,
		meter_id TEXT NOT NULL REFERENCES meters(id),
		agent_id TEXT NOT NULL REFERENCES agents(id),
		meter_data TEXT NOT NULL,
		submission_notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer_id TEXT,
		review_notes TEXT,
		submitted_at DATETIME NOT NULL,
		reviewed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE meter_readings (
		id TEXT PRIMARY KEY,
		meter_id TEXT NOT NULL REFERENCES meters(id),
		agent_id TEXT REFERENCES agents(id),
		assignment_id TEXT REFERENCES meter_assignments(id),
		reading_value REAL NOT NULL,
		reading_date DATETIME NOT NULL,
		latitude REAL,
		longitude REAL,
		notes TEXT,
		is_verified BOOLEAN NOT NULL DEFAULT 0,
		verified_by TEXT,
		verified_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh database with the full schema. Each call gets its
// own named in-memory database so tests can run in parallel.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
