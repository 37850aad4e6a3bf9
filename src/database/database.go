package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/limoney/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	logger.L.Info("Checking database migrations", "databasePath", databasePath)
	migrateReimbursementTable() // Admin-action columns added after the initial release
	migrateTransactionTable()   // notes / is_flagged columns

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		user_type TEXT DEFAULT 'standard',
		auth_provider TEXT DEFAULT 'local',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS linked_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		access_token TEXT NOT NULL,
		item_id TEXT NOT NULL,
		institution_name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS user_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		external_account_id TEXT NOT NULL,
		name TEXT,
		official_name TEXT,
		kind TEXT,
		subtype TEXT,
		balance INTEGER NOT NULL DEFAULT 0,
		institution_name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, external_account_id)
	);

	CREATE TABLE IF NOT EXISTS user_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		account_id INTEGER,
		amount INTEGER NOT NULL,
		direction TEXT NOT NULL CHECK(direction IN ('income','expense')),
		date TEXT NOT NULL,
		name TEXT,
		category TEXT,
		source TEXT NOT NULL DEFAULT 'manual',
		external_id TEXT,
		notes TEXT,
		is_flagged BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		FOREIGN KEY(account_id) REFERENCES user_accounts(id),
		UNIQUE(user_id, external_id)
	);

	CREATE TABLE IF NOT EXISTS reimbursement_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		recipient_id INTEGER,
		recipient_email TEXT NOT NULL,
		recipient_name TEXT,
		recipient_contact TEXT,
		amount INTEGER NOT NULL,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','approved','rejected','completed')),
		kind TEXT NOT NULL DEFAULT 'request' CHECK(kind IN ('request','send')),
		is_flagged BOOLEAN DEFAULT FALSE,
		admin_id INTEGER,
		admin_notes TEXT,
		admin_action_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(sender_id) REFERENCES users(id),
		FOREIGN KEY(recipient_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS budgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		limit_amount INTEGER NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, category, year, month)
	);

	CREATE TABLE IF NOT EXISTS template_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount INTEGER NOT NULL,
		direction TEXT NOT NULL CHECK(direction IN ('income','expense')),
		date TEXT NOT NULL,
		name TEXT,
		category TEXT
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		logger.L.Error("failed to create tables", "error", err)
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	logger.L.Info("Database tables ensured/created.")
}

func tableColumns(table string) (map[string]bool, bool) {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.L.Error("Error checking for table", "table", table, "error", err)
		}
		return nil, false
	}

	rows, err := DB.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		logger.L.Error("Error querying table schema", "table", table, "error", err)
		return nil, false
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			logger.L.Error("Error scanning column info", "table", table, "error", err)
			return nil, false
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		logger.L.Error("Error iterating over column info", "table", table, "error", err)
		return nil, false
	}
	return columnExists, true
}

func addColumn(table, column, definition string) {
	_, err := DB.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	if err != nil {
		logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
		return
	}
	logger.L.Info("Added column", "table", table, "column", column)
}

func migrateReimbursementTable() {
	columnExists, ok := tableColumns("reimbursement_requests")
	if !ok {
		return
	}
	if !columnExists["admin_id"] {
		addColumn("reimbursement_requests", "admin_id", "INTEGER")
	}
	if !columnExists["admin_notes"] {
		addColumn("reimbursement_requests", "admin_notes", "TEXT")
	}
	if !columnExists["admin_action_at"] {
		addColumn("reimbursement_requests", "admin_action_at", "TIMESTAMP")
	}
	if !columnExists["is_flagged"] {
		addColumn("reimbursement_requests", "is_flagged", "BOOLEAN DEFAULT FALSE")
	}
	if !columnExists["kind"] {
		addColumn("reimbursement_requests", "kind", "TEXT NOT NULL DEFAULT 'request'")
	}
}

func migrateTransactionTable() {
	columnExists, ok := tableColumns("user_transactions")
	if !ok {
		return
	}
	if !columnExists["notes"] {
		addColumn("user_transactions", "notes", "TEXT")
	}
	if !columnExists["is_flagged"] {
		addColumn("user_transactions", "is_flagged", "BOOLEAN DEFAULT FALSE")
	}
}
