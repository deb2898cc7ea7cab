package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sheetattend/internal/audit"
	"sheetattend/internal/config"
	"sheetattend/internal/queue"
	"sheetattend/internal/store"
)

// Worker drains audit events from the redis queue into Postgres.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker requires QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := audit.NewRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "attendance:audit")

	log.Println("worker started, waiting for audit events...")
	if err := audit.Consume(ctx, q, repo); err != nil && ctx.Err() == nil {
		log.Fatalf("consume failed: %v", err)
	}
	log.Println("worker stopped")
}
