package database

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// sqlx only knows the cgo driver name for sqlite.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens and pings the database. SQLite connections are limited to a
// single writer and get a busy timeout so concurrent transactions queue.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	slog.Info("🔌 connecting to database", "driver", driver, "dsn_length", len(dsn))

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		slog.Error("❌ database connection failed", "driver", driver, "err", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("✅ database connection successful", "driver", driver)
	return db, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Migrate creates the schema. Every statement is idempotent and runs on both
// PostgreSQL and SQLite, so timestamps are set by the application.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Users: balance is kept in integer cents
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'admin')),
			balance_cents BIGINT NOT NULL DEFAULT 0 CHECK(balance_cents >= 0),
			recycled_count INTEGER NOT NULL DEFAULT 0,
			last_session_start BIGINT,
			last_session_end BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		// Bins: created on first heartbeat or seeded from a file
		`CREATE TABLE IF NOT EXISTS bins (
			id TEXT PRIMARY KEY,
			qr_code TEXT UNIQUE,
			online BOOLEAN NOT NULL DEFAULT FALSE,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			last_heartbeat BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		// Container catalog, read-only at runtime
		`CREATE TABLE IF NOT EXISTS containers (
			id TEXT PRIMARY KEY,
			barcode TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			value_cents BIGINT NOT NULL CHECK(value_cents >= 0),
			weight_grams DOUBLE PRECISION
		)`,

		// Session audit trail. Open rows have ended_at IS NULL.
		`CREATE TABLE IF NOT EXISTS bin_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			bin_id TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			ended_at BIGINT,
			end_reason TEXT CHECK(end_reason IN ('released', 'evicted', 'replaced')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (bin_id) REFERENCES bins(id) ON DELETE CASCADE
		)`,

		// Append-only scan ledger
		`CREATE TABLE IF NOT EXISTS recycled_containers (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			session_id TEXT,
			bin_id TEXT,
			container_id TEXT,
			barcode TEXT NOT NULL,
			accepted BOOLEAN NOT NULL,
			credited_cents BIGINT NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			recorded_at BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL,
			FOREIGN KEY (session_id) REFERENCES bin_sessions(id) ON DELETE SET NULL,
			FOREIGN KEY (container_id) REFERENCES containers(id) ON DELETE SET NULL
		)`,

		// Create FCM tokens table
		`CREATE TABLE IF NOT EXISTS fcm_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			device_type TEXT NOT NULL CHECK(device_type IN ('ios', 'android', 'web')),
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_bins_online ON bins(online)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bin_sessions_open_user ON bin_sessions(user_id) WHERE ended_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bin_sessions_open_bin ON bin_sessions(bin_id) WHERE ended_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_recycled_containers_user_id ON recycled_containers(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recycled_containers_session_id ON recycled_containers(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fcm_tokens_user_id ON fcm_tokens(user_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("✅ database migrations completed", "statements", len(migrations))
	return nil
}
