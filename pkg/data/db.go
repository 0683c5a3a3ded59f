package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "churn.db"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Init creates the database file and applies the schema if it doesn't exist yet.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		db, err := GetDB(dbFilePath)
		if err != nil {
			return fmt.Errorf("error opening database %s: %w", dbFilePath, err)
		}
		defer db.Close()

		slog.Debug("creating db schema...")
		b, err := f.ReadFile("sql/ddl.sql")
		if err != nil {
			return fmt.Errorf("failed to read the schema creation file: %w", err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			return fmt.Errorf("failed to create database schema in %s: %w", dbFilePath, err)
		}
		slog.Debug("db schema created")
	}

	return nil
}

func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
