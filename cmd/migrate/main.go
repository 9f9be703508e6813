package main

import (
	"context"
	"flag"
	"log"

	"quiz-forge/internal/config"
	"quiz-forge/internal/database"
	"quiz-forge/internal/logger"

	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", "database/migrations", "directory holding *.up.sql files")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	l := logger.Get()
	defer logger.Sync()

	if !cfg.ArchiveEnabled() {
		l.Fatal("Database is not configured; set DB_HOST and DB_USER")
	}

	ctx := context.Background()
	db, err := database.NewSQLXOracleDB(ctx, cfg.GetDSN(), l)
	if err != nil {
		l.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, *dir, l); err != nil {
		l.Fatal("Failed to run migrations", zap.Error(err))
	}
}
