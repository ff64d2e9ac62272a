package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sts-backend/cmd"
	"sts-backend/internal/api"
	"sts-backend/internal/database"
	"sts-backend/internal/messaging"
	"sts-backend/internal/storage"
)

type APIConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR"`
	CheckpointBucket  string `env:"CHECKPOINT_BUCKET" envDefault:"checkpoints"`
	APIPort           string `env:"API_PORT" envDefault:"8001"`
}

func newObjectStore(cfg APIConfig) (storage.ObjectStore, error) {
	if cfg.LocalStorageDir != "" {
		return storage.NewLocalObjectStore(cfg.LocalStorageDir)
	}
	return storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	ctx := context.Background()
	if err := store.CreateBucket(ctx, cfg.CheckpointBucket); err != nil {
		log.Fatalf("Failed to create checkpoint bucket: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	apiHandler := api.NewBackendService(db, publisher, store, cfg.CheckpointBucket)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
