package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

var DB *sql.DB

// Connect opens the pool used by the batch job ledger and checks it answers.
func Connect(ctx context.Context, cfg *config.Config) error {
	db, err := sql.Open("pgx", cfg.DBConnStr)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("error connecting to database: %w", err)
	}

	DB = db
	logger.Info(ctx, "connected to PostgreSQL")
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logger.Info(context.Background(), "database connection closed")
	}
}
