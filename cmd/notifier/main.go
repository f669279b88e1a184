package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/resend/resend-go/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"eventflow/internal/config"
	"eventflow/internal/kafka"
	"eventflow/internal/logger"
	"eventflow/internal/notifier"
	registration_db "eventflow/internal/registration/db"
	"eventflow/internal/registration/qr"
)

func connectDB(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting EventFlow notifier initialization")
	_ = godotenv.Load() // Loads .env file if present
	cfg := config.Load()

	if cfg.Email.ResendAPIKey == "" {
		log.Fatal("CONFIG", "RESEND_API_KEY not set")
	}

	bunDB := connectDB(cfg, log)
	defer bunDB.Close()

	topics := []string{
		kafka.TopicRegistrationCreated,
		kafka.TopicRegistrationPromoted,
		kafka.TopicEventCancelled,
	}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics)
	defer consumer.Close()

	n := notifier.New(
		&registration_db.DB{Bun: bunDB},
		resend.NewClient(cfg.Email.ResendAPIKey),
		qr.NewGenerator(cfg.Auth.QRSecret),
		cfg.Email.FromAddress,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Info("KAFKA", fmt.Sprintf("Consuming topics %v as group %s", topics, cfg.Kafka.GroupID))
		if err := consumer.Start(ctx, n.HandleMessage); err != nil && ctx.Err() == nil {
			log.Fatal("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Notifier started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, stopping consumer")
	cancel()
	log.Info("APP", "✅ Notifier shutdown complete")
}
