package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ledgerdock/ledgerdock/internal/api"
	"github.com/ledgerdock/ledgerdock/internal/config"
	"github.com/ledgerdock/ledgerdock/internal/database"
	"github.com/ledgerdock/ledgerdock/internal/engine"
	"github.com/ledgerdock/ledgerdock/internal/extract"
	"github.com/ledgerdock/ledgerdock/internal/queue"
	"github.com/ledgerdock/ledgerdock/internal/repository"
	"github.com/ledgerdock/ledgerdock/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	blobs, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	queueClient := queue.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	svc := engine.New(repository.New(pool), blobs, queueClient, extract.Default(), nil, engine.Options{
		MaxUploadBytes:       cfg.MaxUploadBytes,
		SimilarityThreshold:  cfg.SimilarityThreshold,
		AutoAcceptConfidence: cfg.AutoAcceptConfidence,
		MatchAmountTolerance: cfg.MatchAmountTolerance,
		MatchDateWindowDays:  cfg.MatchDateWindowDays,
		MatchMinScore:        cfg.MatchMinScore,
		SignedURLTTL:         cfg.SignedURLTTL,
	})

	if err := api.New(cfg, svc).Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
