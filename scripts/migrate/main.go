package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
)

//go:embed schema.sql
var schema string

func main() {
	var (
		dryRun  bool
		timeout time.Duration
	)
	flag.BoolVar(&dryRun, "dry-run", false, "Print the schema instead of applying it")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall migration timeout")
	flag.Parse()

	if dryRun {
		fmt.Fprint(os.Stdout, schema)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		logr.Fatal("failed to begin migration", zap.Error(err))
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		_ = tx.Rollback()
		logr.Fatal("failed to apply schema", zap.Error(err))
	}
	if err := tx.Commit(); err != nil {
		logr.Fatal("failed to commit schema", zap.Error(err))
	}
	logr.Info("schema applied", zap.String("database", cfg.Database.Name))
}
