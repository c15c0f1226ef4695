package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "loansight.db")

	// Configure connection string for better performance
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize prepared statements
	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			is_active BOOLEAN DEFAULT TRUE,
			is_paid BOOLEAN DEFAULT FALSE,
			stripe_customer_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Loan applications table
		`CREATE TABLE IF NOT EXISTS loan_applications (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			credit_short REAL NOT NULL,
			credit_long REAL NOT NULL,
			cph REAL NOT NULL,
			ctl REAL NOT NULL,
			aph REAL NOT NULL,
			atl REAL NOT NULL,
			quarter_fluctuation REAL NOT NULL,
			time_limitation REAL,
			residual_fluctuation REAL,
			requested_amount REAL DEFAULT 50000,
			loan_purpose TEXT DEFAULT 'Personal',
			employment_status TEXT DEFAULT 'Employed',
			annual_income REAL DEFAULT 60000,
			status TEXT DEFAULT 'pending' CHECK (status IN ('pending', 'processed', 'approved', 'rejected')),
			application_date DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Predictions table
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			application_id TEXT NOT NULL,
			xgboost_prediction TEXT,
			xgboost_confidence REAL,
			random_forest_prediction TEXT,
			random_forest_confidence REAL,
			logistic_prediction TEXT,
			logistic_confidence REAL,
			knn_prediction TEXT,
			knn_confidence REAL,
			final_prediction TEXT NOT NULL CHECK (final_prediction IN ('Very_Good', 'Normal', 'Very_Bad')),
			final_confidence REAL NOT NULL,
			model_version TEXT DEFAULT '1.0',
			processing_time_ms INTEGER,
			prediction_date DATETIME NOT NULL,
			FOREIGN KEY (application_id) REFERENCES loan_applications(id)
		)`,

		// Model performance tracking
		`CREATE TABLE IF NOT EXISTS model_performance (
			id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			accuracy REAL,
			precision_score REAL,
			recall_score REAL,
			f1_score REAL,
			rmse REAL,
			dataset_size INTEGER,
			notes TEXT,
			evaluation_date DATETIME NOT NULL
		)`,

		// Feature importance per model
		`CREATE TABLE IF NOT EXISTS feature_importance (
			id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			feature_name TEXT NOT NULL,
			importance_score REAL,
			evaluation_date DATETIME NOT NULL
		)`,

		// System configuration
		`CREATE TABLE IF NOT EXISTS system_config (
			id TEXT PRIMARY KEY,
			config_key TEXT UNIQUE NOT NULL,
			config_value TEXT NOT NULL,
			description TEXT,
			updated_at DATETIME NOT NULL
		)`,

		// Request logs table, used for the weekly free-tier quota
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			user_agent TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Payments table
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			stripe_payment_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_applications_user_id ON loan_applications(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_applications_status ON loan_applications(status)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_applications_date ON loan_applications(application_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_application_id ON predictions(application_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_final ON predictions(final_prediction)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_date ON predictions(prediction_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_importance_model ON feature_importance(model_name)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_user_id ON request_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_application": `INSERT INTO loan_applications (
			id, user_id, credit_short, credit_long, cph, ctl, aph, atl, quarter_fluctuation,
			time_limitation, residual_fluctuation, requested_amount, loan_purpose,
			employment_status, annual_income, status, application_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_prediction": `INSERT INTO predictions (
			id, application_id,
			xgboost_prediction, xgboost_confidence,
			random_forest_prediction, random_forest_confidence,
			logistic_prediction, logistic_confidence,
			knn_prediction, knn_confidence,
			final_prediction, final_confidence, model_version, processing_time_ms, prediction_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_request_log": `INSERT INTO request_logs (id, user_id, ip_address, endpoint, method, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"get_user_by_username": `SELECT id, username, email, password_hash, first_name, last_name,
			is_active, is_paid, stripe_customer_id, created_at, updated_at
			FROM users WHERE username = ?`,

		"get_application": `SELECT id, user_id, credit_short, credit_long, cph, ctl, aph, atl,
			quarter_fluctuation, time_limitation, residual_fluctuation, requested_amount,
			loan_purpose, employment_status, annual_income, status, application_date
			FROM loan_applications WHERE id = ?`,

		"get_prediction_by_application": `SELECT id, application_id,
			xgboost_prediction, xgboost_confidence,
			random_forest_prediction, random_forest_confidence,
			logistic_prediction, logistic_confidence,
			knn_prediction, knn_confidence,
			final_prediction, final_confidence, model_version, processing_time_ms, prediction_date
			FROM predictions WHERE application_id = ? ORDER BY prediction_date DESC LIMIT 1`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
