package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Users and sessions
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(100),
			base_currency VARCHAR(10) NOT NULL DEFAULT 'USD',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		`CREATE TABLE IF NOT EXISTS user_sessions (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token_hash VARCHAR(255) NOT NULL,
			user_agent TEXT,
			ip_address VARCHAR(64),
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_token ON user_sessions(refresh_token_hash)`,

		// Portfolios and holdings
		`CREATE TABLE IF NOT EXISTS portfolios (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portfolios_user ON portfolios(user_id)`,

		`CREATE TABLE IF NOT EXISTS holdings (
			id UUID PRIMARY KEY,
			portfolio_id UUID NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
			asset_id VARCHAR(20) NOT NULL,
			quantity DECIMAL(30, 8) NOT NULL,
			avg_buy_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			notes TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (portfolio_id, asset_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_holdings_portfolio ON holdings(portfolio_id)`,

		// Staking catalog, positions and reward ledger
		`CREATE TABLE IF NOT EXISTS staking_plans (
			id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			apy DECIMAL(10, 4) NOT NULL CHECK (apy >= 0),
			lock_period_days INT NOT NULL DEFAULT 0 CHECK (lock_period_days >= 0),
			min_amount DECIMAL(30, 8) NOT NULL CHECK (min_amount > 0),
			max_amount DECIMAL(30, 8) CHECK (max_amount IS NULL OR max_amount >= min_amount),
			supported_coins TEXT[] NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_plans_active ON staking_plans(is_active)`,

		`CREATE TABLE IF NOT EXISTS staking_positions (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			plan_id UUID NOT NULL REFERENCES staking_plans(id),
			asset_id VARCHAR(20) NOT NULL,
			amount DECIMAL(30, 8) NOT NULL CHECK (amount > 0),
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			total_rewards DECIMAL(30, 8) NOT NULL DEFAULT 0 CHECK (total_rewards >= 0),
			last_reward_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_positions_user ON staking_positions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_positions_status ON staking_positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_positions_plan ON staking_positions(plan_id)`,

		`CREATE TABLE IF NOT EXISTS staking_rewards (
			id UUID PRIMARY KEY,
			position_id UUID NOT NULL REFERENCES staking_positions(id) ON DELETE CASCADE,
			amount DECIMAL(30, 8) NOT NULL CHECK (amount > 0),
			reward_date TIMESTAMP NOT NULL,
			apy_rate DECIMAL(10, 4) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_rewards_position ON staking_rewards(position_id)`,
		`CREATE INDEX IF NOT EXISTS idx_staking_rewards_date ON staking_rewards(reward_date)`,

		// updated_at trigger
		`CREATE OR REPLACE FUNCTION update_updated_at_column()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = CURRENT_TIMESTAMP;
			RETURN NEW;
		END;
		$$ language 'plpgsql'`,

		`DROP TRIGGER IF EXISTS update_portfolios_updated_at ON portfolios`,
		`CREATE TRIGGER update_portfolios_updated_at BEFORE UPDATE ON portfolios
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,

		`DROP TRIGGER IF EXISTS update_holdings_updated_at ON holdings`,
		`CREATE TRIGGER update_holdings_updated_at BEFORE UPDATE ON holdings
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,

		`DROP TRIGGER IF EXISTS update_staking_positions_updated_at ON staking_positions`,
		`CREATE TRIGGER update_staking_positions_updated_at BEFORE UPDATE ON staking_positions
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
