package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresConfig carries connection and pool settings. Zero values fall back
// to defaults sized for the pipeline's handful of concurrent jobs.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (cfg *PostgresConfig) applyDefaults() {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

func buildDSN(cfg PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
}

// PostgresService owns the connection pool shared by every store.
type PostgresService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresService(cfg PostgresConfig, logger *zap.Logger) (*PostgresService, error) {
	cfg.applyDefaults()

	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("Postgres pool ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("sslmode", cfg.SSLMode),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return &PostgresService{
		db:     db,
		logger: logger,
	}, nil
}

func (ps *PostgresService) GetDB() *sql.DB {
	return ps.db
}

func (ps *PostgresService) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func (ps *PostgresService) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}
