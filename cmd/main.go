/**
 * @description
 * This is the main entry point for the transfer-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/ledgerclient, pkg/authclient, pkg/directoryclient: Clients for external services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kashly/transfer-service/internal/api"
	"github.com/kashly/transfer-service/internal/app"
	"github.com/kashly/transfer-service/internal/config"
	"github.com/kashly/transfer-service/internal/store"
	"github.com/kashly/transfer-service/pkg/authclient"
	"github.com/kashly/transfer-service/pkg/directoryclient"
	"github.com/kashly/transfer-service/pkg/ledgerclient"
	kashlyrabbit "github.com/kashly/transfer-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.LedgerAPIBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger api base url must be configured\" env=LEDGER_API_BASE_URL")
	}
	if strings.TrimSpace(cfg.AuthAPIBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"auth api base url must be configured\" env=AUTH_API_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transfer-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish transfer events. The
	// broker being down degrades to a no-op publisher instead of blocking
	// boot.
	var eventProducer kashlyrabbit.Publisher
	producer, err := kashlyrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &kashlyrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Shared Redis backs the draft store, the PIN attempt limiter, and the
	// settlement in-flight lock. Without it each concern falls back to a
	// process-local implementation.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process draft store and limiter\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process draft store and limiter\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process draft store and limiter\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the external service clients.
	ledgerClient := ledgerclient.NewClient(cfg.LedgerAPIBaseURL, cfg.LedgerAPIKey, cfg.LedgerAtomicTransfers)
	authClient := authclient.NewClient(cfg.AuthAPIBaseURL, cfg.AuthAPIKey)

	var directory app.ContactDirectory
	if strings.TrimSpace(cfg.DirectoryAPIBaseURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"directory client not configured; contact search disabled\" env=DIRECTORY_API_BASE_URL")
	} else {
		directory = directoryclient.NewClient(cfg.DirectoryAPIBaseURL, cfg.DirectoryAPIKey)
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	draftTTL := time.Duration(cfg.DraftTTLMinutes) * time.Minute
	pinWindow := time.Duration(cfg.PINAttemptWindowSeconds) * time.Second
	settleTimeout := time.Duration(cfg.SettlementTimeoutSecs) * time.Second

	var drafts app.DraftStore
	var limiter app.AttemptLimiter
	var locks app.SettlementLock
	if redisClient != nil {
		drafts = app.NewRedisDraftStore(redisClient, cfg.RedisKeyPrefix, draftTTL, nil)
		limiter = app.NewRedisAttemptLimiter(redisClient, cfg.RedisKeyPrefix)
		locks = app.NewRedisSettlementLock(redisClient, cfg.RedisKeyPrefix)
	} else {
		drafts = app.NewMemoryDraftStore(draftTTL, nil)
		limiter = app.NewMemoryAttemptLimiter(nil)
		locks = app.NewMemorySettlementLock(nil)
	}

	// Initialize the core application service with its dependencies.
	quotes := app.NewQuoteCalculator(cfg.FlatFeeCents, cfg.FeeWaiverThresholdCents, cfg.PerTransferLimitCents, cfg.Currencies())
	resolver := app.NewRecipientResolver(repository, directory)
	gate := app.NewAuthorizationGate(authClient, limiter, cfg.PINMaxAttempts, pinWindow)
	executor := app.NewSettlementExecutor(repository, ledgerClient, eventProducer, settleTimeout, cfg.PerTransferLimitCents, nil)

	transferService := app.NewService(
		repository,
		drafts,
		quotes,
		resolver,
		gate,
		executor,
		locks,
		cfg.MaxNoteLength,
		settleTimeout,
		nil,
	)

	// Initialize the API handlers.
	transferHandlers := api.NewTransferHandlers(transferService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/transfers", api.TransferRoutes(transferHandlers, cfg.JWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
