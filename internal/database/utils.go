package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}

func UpdateTrainRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == RunCompleted || status == RunFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&TrainRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating train run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateEvalRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == RunCompleted || status == RunFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&EvalRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating eval run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func FailTrainRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, message string) {
	updates := map[string]any{
		"status":          RunFailed,
		"completion_time": time.Now().UTC(),
		"error_message":   message,
	}
	if err := txn.WithContext(ctx).Model(&TrainRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error marking train run failed", "run_id", runId, "error", err)
	}
}

func FailEvalRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, message string) {
	updates := map[string]any{
		"status":          RunFailed,
		"completion_time": time.Now().UTC(),
		"error_message":   message,
	}
	if err := txn.WithContext(ctx).Model(&EvalRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error marking eval run failed", "run_id", runId, "error", err)
	}
}
