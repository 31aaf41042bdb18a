package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alliancegenome/litupload/internal/config"
	"github.com/alliancegenome/litupload/internal/database"
	"github.com/alliancegenome/litupload/internal/job"
	"github.com/alliancegenome/litupload/internal/referencestore"
	"github.com/alliancegenome/litupload/internal/server"
	"github.com/alliancegenome/litupload/internal/upload"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	store, err := referencestore.New(cfg, pool)
	if err != nil {
		log.Fatalf("init reference store: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	registry := job.NewRegistry()
	orchestrator := upload.New(registry, cfg.ScratchRoot)
	srv := server.New(cfg, registry, orchestrator, store.PersistFile)

	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
