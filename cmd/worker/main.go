package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	ort "github.com/yalue/onnxruntime_go"

	"sts-backend/cmd"
	"sts-backend/internal/core"
	"sts-backend/internal/database"
	"sts-backend/internal/dataset"
	"sts-backend/internal/messaging"
	"sts-backend/internal/storage"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR"`
	CheckpointBucket  string `env:"CHECKPOINT_BUCKET" envDefault:"checkpoints"`

	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	ManifestPath string `env:"DATA_MANIFEST"`

	LocalModelDir  string `env:"LOCAL_MODEL_DIR" envDefault:"models"`
	TrainerURL     string `env:"TRAINER_URL" envDefault:"http://localhost:8002"`
	PromptTemplate string `env:"PROMPT_TEMPLATE"`

	// OnnxRuntimeLib points at the onnxruntime shared library; the onnx
	// model backend is unavailable when unset.
	OnnxRuntimeLib string `env:"ONNX_RUNTIME_DYLIB"`
}

func newObjectStore(cfg WorkerConfig) (storage.ObjectStore, error) {
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
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
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

	if err := store.CreateBucket(context.Background(), cfg.CheckpointBucket); err != nil {
		log.Fatalf("Failed to create checkpoint bucket: %v", err)
	}

	manifest := dataset.DefaultManifest()
	if cfg.ManifestPath != "" {
		manifest, err = dataset.LoadManifest(cfg.ManifestPath)
		if err != nil {
			log.Fatalf("Failed to load data manifest: %v", err)
		}
	}

	if cfg.OnnxRuntimeLib != "" {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLib)
		if err := ort.InitializeEnvironment(); err != nil {
			log.Fatalf("Failed to initialize onnxruntime: %v", err)
		}
		defer ort.DestroyEnvironment() //nolint:errcheck
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ receiver: %v", err)
	}

	processor := core.NewTaskProcessor(
		db,
		store,
		publisher,
		receiver,
		cfg.DataDir,
		manifest,
		cfg.LocalModelDir,
		cfg.CheckpointBucket,
		cfg.PromptTemplate,
		core.NewModelLoaders(cfg.TrainerURL),
	)

	go processor.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")

	processor.Stop()

	log.Println("Worker process stopped.")
}
