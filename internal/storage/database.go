package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"teamassist/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver type.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present. Statements are idempotent;
// there is no versioned migration mechanism.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				name TEXT NOT NULL,
				timestamp TEXT NOT NULL,
				activity_id TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_activity ON messages(activity_id) WHERE activity_id IS NOT NULL`,
			`CREATE TABLE IF NOT EXISTS action_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id TEXT NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				assigned_to TEXT NOT NULL DEFAULT '',
				assigned_to_id TEXT NOT NULL DEFAULT '',
				assigned_by TEXT NOT NULL DEFAULT '',
				assigned_by_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				priority TEXT NOT NULL,
				due_date TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				updated_by TEXT NOT NULL DEFAULT '',
				source_message_ids TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_action_items_conversation ON action_items(conversation_id)`,
			`CREATE INDEX IF NOT EXISTS idx_action_items_assignee ON action_items(assigned_to_id)`,
			`CREATE TABLE IF NOT EXISTS feedback (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id TEXT NOT NULL UNIQUE,
				likes INTEGER NOT NULL DEFAULT 0,
				dislikes INTEGER NOT NULL DEFAULT 0,
				delegated_capability TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS feedback_comments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id TEXT NOT NULL,
				comment TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feedback_comments_message ON feedback_comments(message_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				conversation_id VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				timestamp VARCHAR(32) NOT NULL,
				activity_id VARCHAR(255),
				PRIMARY KEY (id),
				UNIQUE KEY uniq_messages_activity (activity_id),
				INDEX idx_messages_conversation (conversation_id, timestamp)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS action_items (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				conversation_id VARCHAR(255) NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL,
				assigned_to VARCHAR(255) NOT NULL DEFAULT '',
				assigned_to_id VARCHAR(255) NOT NULL DEFAULT '',
				assigned_by VARCHAR(255) NOT NULL DEFAULT '',
				assigned_by_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				priority VARCHAR(50) NOT NULL,
				due_date VARCHAR(32),
				created_at VARCHAR(32) NOT NULL,
				updated_at VARCHAR(32) NOT NULL,
				updated_by VARCHAR(255) NOT NULL DEFAULT '',
				source_message_ids TEXT,
				PRIMARY KEY (id),
				INDEX idx_action_items_conversation (conversation_id),
				INDEX idx_action_items_assignee (assigned_to_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feedback (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				message_id VARCHAR(255) NOT NULL,
				likes INT NOT NULL DEFAULT 0,
				dislikes INT NOT NULL DEFAULT 0,
				delegated_capability VARCHAR(100),
				created_at VARCHAR(32) NOT NULL,
				updated_at VARCHAR(32) NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_feedback_message (message_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feedback_comments (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				message_id VARCHAR(255) NOT NULL,
				comment TEXT NOT NULL,
				created_at VARCHAR(32) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_feedback_comments_message (message_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
