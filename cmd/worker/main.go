package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/config"
	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/logger"
	"github.com/mailtasker/mailtasker/internal/queue"
	"github.com/mailtasker/mailtasker/internal/reconciler"
	"github.com/mailtasker/mailtasker/internal/services/ai"
	"github.com/mailtasker/mailtasker/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for model API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("Starting worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("reconcile_policy", cfg.ReconcilePolicy),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("Failed to close database connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to database")

	emailRepo := database.NewRawEmailRepository(db)
	taskRepo := database.NewTaskRepository(db)
	budgetRepo := database.NewBudgetRepository(db)
	userRepo := database.NewUserRepository(db)
	promptConfigRepo := database.NewPromptConfigRepository(db)
	invocationRepo := database.NewInvocationRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to RabbitMQ",
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	// Build the reprocessing pipeline
	invoker := ai.NewInvoker(cfg.OpenAIKey, cfg.AIBaseURL, promptConfigRepo, invocationRepo, zapLogger, debugMode)

	policy, err := reconciler.NewPolicy(cfg.ReconcilePolicy)
	if err != nil {
		zapLogger.Fatal("Invalid reconcile policy", zap.Error(err))
	}
	rec := reconciler.New(taskRepo, emailRepo, invoker, policy, zapLogger)
	reprocessor := workers.NewReprocessor(emailRepo, budgetRepo, rec, cfg.TextBodyMinRatio, zapLogger)

	processor := workers.NewJobProcessor(
		reprocessor,
		budgetRepo,
		userRepo,
		jobQueue,
		cfg.BudgetDepositNano,
		cfg.BudgetMaxAccruedNano,
		zapLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("Failed to start consuming messages", zap.Error(err))
	}

	zapLogger.Info("Worker started, consuming messages from queue")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("Message channel closed")
					return
				}

				if err := processor.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("Failed to process job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("Queue error", zap.Error(err))
			}
		}
	}()

	<-sigChan
	zapLogger.Info("Shutdown signal received, stopping worker...")

	cancel()

	zapLogger.Info("Worker stopped")
}
