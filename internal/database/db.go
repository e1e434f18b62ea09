// Package database opens the SQLite files behind the simulator and applies
// their embedded schemas.
package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemaFiles embed.FS

// DatabaseProfile selects durability and pool settings for a database file
type DatabaseProfile string

const (
	// ProfileLedger is for balances and transaction history: fsync on every commit
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache is for data that can be refetched
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard sits between the two
	ProfileStandard DatabaseProfile = "standard"
)

type profileSettings struct {
	pragmas      []string
	maxOpenConns int
	maxIdleConns int
}

var profiles = map[DatabaseProfile]profileSettings{
	ProfileLedger: {
		pragmas:      []string{"synchronous(FULL)", "auto_vacuum(NONE)"},
		maxOpenConns: 25,
		maxIdleConns: 5,
	},
	ProfileCache: {
		pragmas:      []string{"synchronous(OFF)", "auto_vacuum(FULL)", "temp_store(MEMORY)"},
		maxOpenConns: 10,
		maxIdleConns: 2,
	},
	ProfileStandard: {
		pragmas:      []string{"synchronous(NORMAL)", "auto_vacuum(INCREMENTAL)", "temp_store(MEMORY)"},
		maxOpenConns: 25,
		maxIdleConns: 5,
	},
}

// Shared by every profile. busy_timeout makes writers wait instead of failing with SQLITE_BUSY.
var commonPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"wal_autocheckpoint(1000)",
	"cache_size(-64000)",
}

// DB is an open SQLite database with the pool tuned for its profile
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// Config describes a database to open
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // Also selects the schema file, e.g. "portfolio" → portfolio_schema.sql
}

// New opens the database, creating its directory if needed, and pings it
func New(cfg Config) (*DB, error) {
	// file: URIs are passed through untouched
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	settings, ok := profiles[cfg.Profile]
	if !ok {
		cfg.Profile = ProfileStandard
		settings = profiles[ProfileStandard]
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}
	conn.SetMaxOpenConns(settings.maxOpenConns)
	conn.SetMaxIdleConns(settings.maxIdleConns)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile DatabaseProfile) string {
	pragmas := append([]string{"journal_mode(WAL)"}, profiles[profile].pragmas...)
	pragmas = append(pragmas, commonPragmas...)
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the pool for repositories
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name used in logs and status output
func (db *DB) Name() string {
	return db.name
}

// Migrate applies the embedded schema for this database's name and records
// its checksum. A schema whose checksum is already recorded is skipped.
// Names without a schema file are left untouched.
func (db *DB) Migrate() error {
	schemaFile := db.name + "_schema.sql"
	content, err := schemaFiles.ReadFile("schemas/" + schemaFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaFile, err)
	}

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])

	return WithTransaction(context.Background(), db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
			schema     TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
			return fmt.Errorf("failed to create schema_migrations for %s: %w", db.name, err)
		}

		var applied string
		err := tx.QueryRow("SELECT checksum FROM schema_migrations WHERE schema = ?", schemaFile).Scan(&applied)
		if err == nil && applied == checksum {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read migration state for %s: %w", db.name, err)
		}

		// Schemas are written with IF NOT EXISTS, so a changed file is re-run whole
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s for %s: %w", schemaFile, db.name, err)
		}
		_, err = tx.Exec(`
			INSERT INTO schema_migrations (schema, checksum, applied_at) VALUES (?, ?, ?)
			ON CONFLICT(schema) DO UPDATE SET checksum = excluded.checksum, applied_at = excluded.applied_at`,
			schemaFile, checksum, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to record schema %s for %s: %w", schemaFile, db.name, err)
		}
		return nil
	})
}

// WithTransaction runs fn inside a transaction on db. It commits when fn
// returns nil and rolls back on error or panic. Errors from fn are returned
// unwrapped so callers can match sentinels.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(tx)
}

// HealthCheck pings the database and runs PRAGMA quick_check
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}

// WALCheckpoint folds the WAL back into the main file. mode is one of
// PASSIVE, FULL, RESTART or TRUNCATE (the default).
func (db *DB) WALCheckpoint(mode string) error {
	switch mode {
	case "":
		mode = "TRUNCATE"
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return fmt.Errorf("unknown checkpoint mode %q", mode)
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(" + mode + ")"); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// SnapshotTo writes a consistent copy of the database to destPath with
// VACUUM INTO. destPath must not exist.
func (db *DB) SnapshotTo(ctx context.Context, destPath string) error {
	escaped := strings.ReplaceAll(destPath, "'", "''")
	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
		return fmt.Errorf("VACUUM INTO failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats is reported per database on the system status endpoint
type Stats struct {
	Profile       DatabaseProfile `json:"profile"`
	SizeBytes     int64           `json:"size_bytes"`
	WALSizeBytes  int64           `json:"wal_size_bytes"`
	PageCount     int64           `json:"page_count"`
	PageSize      int64           `json:"page_size"`
	FreelistCount int64           `json:"freelist_count"`
}

// GetStats reads file sizes and page counters
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{Profile: db.profile}

	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}

	counters := []struct {
		pragma string
		dest   *int64
	}{
		{"page_count", &stats.PageCount},
		{"page_size", &stats.PageSize},
		{"freelist_count", &stats.FreelistCount},
	}
	for _, c := range counters {
		if err := db.conn.QueryRow("PRAGMA " + c.pragma).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to read %s for %s: %w", c.pragma, db.name, err)
		}
	}
	return stats, nil
}
