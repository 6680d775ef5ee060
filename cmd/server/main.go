package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/config"
	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/handlers"
	"github.com/mailtasker/mailtasker/internal/intake"
	"github.com/mailtasker/mailtasker/internal/logger"
	"github.com/mailtasker/mailtasker/internal/middleware"
	"github.com/mailtasker/mailtasker/internal/queue"
	"github.com/mailtasker/mailtasker/internal/reconciler"
	"github.com/mailtasker/mailtasker/internal/services/ai"
	"github.com/mailtasker/mailtasker/internal/telemetry"
	"github.com/mailtasker/mailtasker/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for model API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("reconcile_policy", cfg.ReconcilePolicy),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	var tracerProvider interface{ Shutdown(context.Context) error }
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "mailtasker-api", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracerProvider = tp
				zapLogger.Info("otel_tracer_initialized",
					zap.String("endpoint", cfg.OTELEndpoint),
				)
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	// Redis backs both rate limiting and webhook dedup
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	// Initialize repositories
	emailRepo := database.NewRawEmailRepository(db)
	taskRepo := database.NewTaskRepository(db)
	budgetRepo := database.NewBudgetRepository(db)
	userRepo := database.NewUserRepository(db)
	promptConfigRepo := database.NewPromptConfigRepository(db)
	invocationRepo := database.NewInvocationRepository(db)

	// Initialize services
	dedupGate := intake.NewGate(redisClient, emailRepo, zapLogger)
	invoker := ai.NewInvoker(cfg.OpenAIKey, cfg.AIBaseURL, promptConfigRepo, invocationRepo, zapLogger, debugMode)

	policy, err := reconciler.NewPolicy(cfg.ReconcilePolicy)
	if err != nil {
		zapLogger.Fatal("invalid_reconcile_policy", zap.Error(err))
	}
	rec := reconciler.New(taskRepo, emailRepo, invoker, policy, zapLogger)
	reprocessor := workers.NewReprocessor(emailRepo, budgetRepo, rec, cfg.TextBodyMinRatio, zapLogger)

	// Initialize handlers
	inboundHandler := handlers.NewInboundEmailHandler(emailRepo, budgetRepo, dedupGate, rec, jobQueue, cfg.TextBodyMinRatio, zapLogger)
	budgetHandler := handlers.NewBudgetHandler(budgetRepo, userRepo, cfg.BudgetDepositNano, cfg.BudgetMaxAccruedNano, zapLogger)
	reprocessHandler := handlers.NewReprocessHandler(reprocessor, jobQueue, zapLogger)
	taskHandler := handlers.NewTaskHandler(taskRepo, budgetRepo, zapLogger)
	healthChecker := handlers.NewHealthChecker(db, redisClient, jobQueue)

	r := mux.NewRouter()

	zapLogger.Info("setting_up_middleware")

	if cfg.OTELEnabled && tracerProvider != nil {
		r.Use(otelmux.Middleware("mailtasker-api"))
		zapLogger.Info("otel_middleware_enabled")
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimitRate)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Public routes (no rate limiting for health checks)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	openAPIPath := filepath.Join("api", "openapi", "openapi.yaml")
	openAPIHandler := handlers.NewOpenAPIHandler(openAPIPath)
	openAPIHandler.RegisterRoutes(r)

	// Webhook intake: user-scoped token, optional provider IP allowlist
	inboundRouter := r.PathPrefix("/inbound-email").Subrouter()
	inboundRouter.Use(middleware.IPAllowlist(cfg.WebhookAllowedIPs))
	inboundRouter.Use(middleware.UserAuth(cfg.JWTSecret, userRepo))
	inboundRouter.Use(rateLimitMW)
	inboundRouter.HandleFunc("", inboundHandler.Receive).Methods("POST")

	// Operator routes: service-role key only
	serviceRouter := r.PathPrefix("").Subrouter()
	serviceRouter.Use(middleware.ServiceAuth(cfg.ServiceRoleKey))
	serviceRouter.HandleFunc("/deposit-budget", budgetHandler.Deposit).Methods("POST")
	serviceRouter.HandleFunc("/reprocess", reprocessHandler.Reprocess).Methods("POST")

	// User-facing read API
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.UserAuth(cfg.JWTSecret, userRepo))
	apiRouter.Use(rateLimitMW)
	apiRouter.HandleFunc("/tasks", taskHandler.ListOpen).Methods("GET")
	apiRouter.HandleFunc("/budget", taskHandler.Balance).Methods("GET")

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()

	// DLQ garbage collector: run every hour, retain messages for 24 hours
	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, 1*time.Hour, 24*time.Hour, zapLogger)
		go func() {
			if err := dlqGC.Start(gcCtx); err != nil && err != context.Canceled {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", 1*time.Hour),
			zap.Duration("retention", 24*time.Hour),
		)
	}

	go func() {
		zapLogger.Info("server_starting",
			zap.String("port", cfg.ServerPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	gcCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRabbitMQ retries with exponential backoff to ride out broker startup delays.
func connectRabbitMQ(amqpURL string, zapLogger *zap.Logger) queue.JobQueue {
	const maxRetries = 10
	const initialDelay = 2 * time.Second
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		jobQueue, err := queue.NewRabbitMQQueue(amqpURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return jobQueue
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}
