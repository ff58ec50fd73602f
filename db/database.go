package db

import (
	"database/sql"
	"fmt"
	"log"

	"clipfm/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id CHAR(36) PRIMARY KEY,
		user_id CHAR(36) NOT NULL,
		source VARCHAR(16) NOT NULL,
		source_url VARCHAR(2048),
		content_id VARCHAR(64),
		name VARCHAR(255) NOT NULL,
		blob_path VARCHAR(767),
		playable_url VARCHAR(2048),
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		rms DOUBLE NOT NULL DEFAULT 0.001,
		status VARCHAR(16) NOT NULL,
		error_message VARCHAR(512),
		ordinal BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_user_ordinal (user_id, ordinal),
		INDEX idx_user_content (user_id, content_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}
