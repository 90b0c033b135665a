package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_executor/internal/modules/config"
)

// Накатывает схему леджера на пустую базу. Схема идемпотентна
// (CREATE ... IF NOT EXISTS), повторный запуск безопасен.
func main() {
	schemaPath := flag.String("schema", "internal/modules/ledger/sql/schema.sql", "path to schema file")
	flag.Parse()

	if err := run(*schemaPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("schema applied")
}

func run(schemaPath string) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return errors.Wrap(err, "config")
	}
	if cfg.DB == "" {
		return errors.New("empty db_dsn (set DATABASE_DSN)")
	}

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return errors.Wrap(err, "read schema")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.DB)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, string(schema)); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}
