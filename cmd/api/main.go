package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/storefront/internal/api"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/domain/admin"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/domain/user"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/infrastructure/paypal"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[API] Invalid config: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Storefront API")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[API] Topic: %s", cfg.KafkaTopic)
	log.Printf("[API] Redis: %s", cfg.RedisAddr)
	log.Printf("[API] PayPal: %s (%s)", cfg.PayPal.Mode, cfg.PayPal.Currency)

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[API] Connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := store.RunMigrations(db); err != nil {
			log.Fatalf("[API] Failed to run migrations: %v", err)
		}
		log.Println("[API] Migrations applied")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("[API] Failed to connect to Redis: %v", err)
	}
	pingCancel()
	log.Println("[API] Connected to Redis")

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	gateway := paypal.NewClient(paypal.Config{
		ClientID: cfg.PayPal.ClientID,
		Secret:   cfg.PayPal.Secret,
		BaseURL:  cfg.PayPal.BaseURL,
		Currency: cfg.PayPal.Currency,
		Timeout:  cfg.PayPal.Timeout,
	})

	st := store.NewPostgresStore(db)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	handlers := api.NewHandlers(api.Services{
		Cart:    cart.NewService(st),
		Order:   order.NewService(st, producer),
		Payment: payment.NewService(st, gateway, producer),
		Catalog: catalog.NewService(st),
		User:    user.NewService(st),
		Admin:   admin.NewService(st),
		JWT:     jwtService,
	}, cfg.SecureCookies)

	router := api.NewRouter(api.RouterConfig{
		Handlers:      handlers,
		JWTService:    jwtService,
		Staging:       session.NewRedisStaging(rdb, cfg.SessionTTL),
		SecureCookies: cfg.SecureCookies,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
}
