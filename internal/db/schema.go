package db

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// EnsureSchema creates the named Postgres schema when it does not exist.
func EnsureSchema(d *gorm.DB, schema string) error {
	if !identRe.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// WithAdvisoryLock runs fn while holding a session-level advisory lock on key.
// The lock is taken on a single pooled connection so it serializes concurrent
// callers that use the same key.
func WithAdvisoryLock(d *gorm.DB, key int64, fn func(*gorm.DB) error) error {
	return d.Connection(func(conn *gorm.DB) error {
		if err := conn.Exec(`SELECT pg_advisory_lock(?)`, key).Error; err != nil {
			return fmt.Errorf("advisory lock %d: %w", key, err)
		}
		defer conn.Exec(`SELECT pg_advisory_unlock(?)`, key)
		return fn(conn)
	})
}
