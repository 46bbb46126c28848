package store

import (
	"database/sql"
	"fmt"
)

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS conversation_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_message_at TEXT
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			confidence_score INTEGER,
			suggested_actions TEXT,
			market_context TEXT,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			total_value REAL,
			pnl_total REAL,
			pnl_percent REAL,
			sharpe_ratio REAL,
			kelly_fraction REAL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT,
			user_id TEXT NOT NULL,
			market_ticker TEXT NOT NULL DEFAULT '',
			market_title TEXT,
			side TEXT NOT NULL DEFAULT '',
			quantity REAL NOT NULL DEFAULT 0,
			avg_price REAL NOT NULL DEFAULT 0,
			current_price REAL,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			risk_score REAL,
			risk_classification TEXT NOT NULL DEFAULT '',
			is_current INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	for _, idx := range []struct{ name, table, columns string }{
		{"idx_chat_messages_session", "chat_messages", "session_id, created_at"},
		{"idx_sessions_user", "conversation_sessions", "user_id, updated_at"},
		{"idx_positions_user_status", "positions", "user_id, status"},
		{"idx_risk_user_current", "risk_assessments", "user_id, is_current"},
		{"idx_portfolios_user_active", "portfolios", "user_id, is_active"},
	} {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.columns)
		if err := exec(tx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}
