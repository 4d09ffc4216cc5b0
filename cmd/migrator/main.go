package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/store"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Testable variables for main()
var (
	logFatalf = log.Fatalf
	openSQLFn = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }
	gooseUpFn = goose.UpContext
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := runMigrations(ctx); err != nil {
		logFatalf("migration: %v", err)
	}
}

func runMigrations(ctx context.Context) error {
	dsn, err := store.PostgresDSN()
	if err != nil {
		return fmt.Errorf("resolve dsn: %w", err)
	}
	db, err := openSQLFn(dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := gooseUpFn(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Printf("migrations up to date")
	return nil
}
