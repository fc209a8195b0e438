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

	"alcyxob/fitness-workspace/internal/api"
	"alcyxob/fitness-workspace/internal/config"
	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository/mongo"
	"alcyxob/fitness-workspace/internal/service"
	"alcyxob/fitness-workspace/internal/storage"

	"github.com/gin-gonic/gin"
)

// @title Fitness Workspace API
// @version 1.0
// @description Shared workspace between users and agents: typed cards, a
// @description versioned reducer, proposal queues and an append-only event log.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting Fitness Workspace Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureWorkspaceIndexes(ctx, appDB.Collection("workspaces"))
		mongo.EnsureCardIndexes(ctx, appDB.Collection("cards"))
		mongo.EnsureQueueIndexes(ctx, appDB.Collection("queue_entries"))
		mongo.EnsureEventIndexes(ctx, appDB.Collection("events"))
		mongo.EnsureIdempotencyIndexes(ctx, appDB.Collection("idempotency_records"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	workspaceRepo := mongo.NewMongoWorkspaceRepository(appDB)
	cardRepo := mongo.NewMongoCardRepository(appDB)
	queueRepo := mongo.NewMongoQueueRepository(appDB)
	eventRepo := mongo.NewMongoEventRepository(appDB)
	idempotencyRepo := mongo.NewMongoIdempotencyRepository(appDB)
	txnRunner := mongo.NewMongoTxnRunner(dbClient)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	guard := service.NewIdempotencyGuard(idempotencyRepo, domain.DefaultIdempotencyTTL)
	queueManager := service.NewQueueManager(queueRepo)
	workspaceService := service.NewWorkspaceService(
		workspaceRepo, cardRepo, queueRepo, eventRepo,
		guard, queueManager, txnRunner, cfg.Workspace.UndoWindow)
	proposeService := service.NewProposeService(workspaceRepo, cardRepo, queueManager, cfg.Sweeper.ProposalTTL)
	sweeperService := service.NewSweeperService(workspaceRepo, cardRepo, queueRepo, eventRepo, txnRunner)

	var archiveService service.ArchiveService
	if cfg.Archive.Enabled {
		log.Println("Initializing event archive sink...")
		sink, err := storage.NewS3Sink(cfg.S3)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 archive sink: %v", err)
		}
		archiveService = service.NewArchiveService(eventRepo, sink)
	}

	// --- Background Workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go sweeperService.Run(workerCtx, cfg.Sweeper.Interval)
	if archiveService != nil {
		go archiveService.Run(workerCtx, cfg.Archive.Interval, cfg.Archive.Retention)
	}

	// --- Initialize Gin Engine ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret,
		authService, workspaceService, proposeService, sweeperService,
		archiveService, cfg.Archive.Retention)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	stopWorkers()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
