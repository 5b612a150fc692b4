package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/reconciliation"
)

// The reconciler records captures the API could not turn into orders
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Reconciler] Failed to load config: %v", err)
	}

	log.Println("[Reconciler] ========================================")
	log.Println("[Reconciler] Storefront - Payment Reconciler")
	log.Println("[Reconciler] ========================================")
	log.Printf("[Reconciler] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Reconciler] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Reconciler] Group: %s", cfg.KafkaGroupID)

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Reconciler] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[Reconciler] Connected to PostgreSQL")

	handler := reconciliation.NewHandler(store.NewPostgresStore(db))

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	go func() {
		log.Println("[Reconciler] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
			log.Printf("[Reconciler] Consumer error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Reconciler] Shutting down...")
	cancel()
}
