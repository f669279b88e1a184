package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"eventflow/internal/auth"
	auth_api "eventflow/internal/auth/api"
	auth_db "eventflow/internal/auth/db"
	"eventflow/internal/community"
	community_api "eventflow/internal/community/api"
	community_db "eventflow/internal/community/db"
	"eventflow/internal/config"
	"eventflow/internal/database/migrations"
	"eventflow/internal/event"
	event_api "eventflow/internal/event/api"
	event_db "eventflow/internal/event/db"
	"eventflow/internal/kafka"
	"eventflow/internal/logger"
	"eventflow/internal/registration"
	registration_api "eventflow/internal/registration/api"
	registration_db "eventflow/internal/registration/db"
	"eventflow/internal/registration/qr"
	rediswrap "eventflow/internal/registration/redis"
	"eventflow/internal/subscription"
	subscription_api "eventflow/internal/subscription/api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
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

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return bunDB, redisClient
}

// watchExpiredHolds logs capacity holds that outlived their registration
// attempt. Holds are advisory; nothing needs cleanup beyond the log line.
func watchExpiredHolds(rdb *redis.Client, log *logger.Logger) {
	ctx := context.Background()

	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else if len(val) >= 2 {
		setting, _ := val[1].(string)
		if !strings.Contains(setting, "x") && !strings.Contains(setting, "E") {
			log.Warn("REDIS", "Keyspace notifications not properly configured for expiry events")
		}
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", "Subscribed to Redis keyevent expired notifications")

	go func() {
		for msg := range pubsub.Channel() {
			eventID, userID, ok := rediswrap.ParseExpiredKey(msg.Payload)
			if !ok {
				continue
			}
			log.Info("REGISTRATION", fmt.Sprintf("Capacity hold expired for event %s, user %s", eventID, userID))
		}
	}()
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting EventFlow API initialization")
	_ = godotenv.Load() // Loads .env file if present
	cfg := config.Load()

	ctx := context.Background()
	client := &http.Client{Timeout: 10 * time.Second}

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
	}

	var eventBus event.Publisher
	var registrationBus registration.Publisher
	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		defer producer.Close()
		eventBus = producer
		registrationBus = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled; domain events will not be published")
	}

	providers, err := auth.NewOAuthProviders(ctx, cfg.Auth, cfg.Server.BaseURL, redisClient, client)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize OAuth providers: %v", err))
	}

	authService := auth.NewService(
		&auth_db.DB{Bun: bunDB},
		auth.NewSessionCache(redisClient),
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.SessionTTL,
		log,
	)
	communityService := community.NewService(&community_db.DB{Bun: bunDB}, log)
	eventService := event.NewService(&event_db.DB{Bun: bunDB}, communityService, eventBus, log)
	registrationService := registration.NewService(
		&registration_db.DB{Bun: bunDB},
		rediswrap.NewHolds(redisClient),
		communityService,
		registrationBus,
		qr.NewGenerator(cfg.Auth.QRSecret),
		log,
	)
	subscription.InitStripe(cfg.Stripe.SecretKey)
	subscriptionService := subscription.NewService(&community_db.DB{Bun: bunDB}, cfg.Stripe, log)

	authHandler := auth_api.NewHandler(authService, providers, log)
	communityHandler := community_api.NewHandler(communityService, log)
	eventHandler := event_api.NewHandler(eventService, log)
	registrationHandler := registration_api.NewHandler(registrationService, log)
	subscriptionHandler := subscription_api.NewHandler(subscriptionService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Route("/api", func(r chi.Router) {
		authHandler.RegisterPublicRoutes(r)
		subscriptionHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalMiddleware(authService))
			eventHandler.RegisterPublicRoutes(r)
			r.Get("/communities/{slug}", communityHandler.GetBySlug)
		})

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(authService))
			authHandler.RegisterProtectedRoutes(r)
			communityHandler.RegisterRoutes(r)
			eventHandler.RegisterProtectedRoutes(r)
			registrationHandler.RegisterRoutes(r)
			subscriptionHandler.RegisterProtectedRoutes(r)
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Info("REDIS", "Starting capacity hold expiry watcher")
	watchExpiredHolds(redisClient, log)

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 EventFlow API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ EventFlow API shutdown complete")
	}
}
