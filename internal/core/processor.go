package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sts-backend/internal/database"
	"sts-backend/internal/dataset"
	"sts-backend/internal/messaging"
	"sts-backend/internal/storage"
	"sts-backend/pkg/api"
)

// TaskProcessor drains the fit and eval queues. Jobs carry only the run id;
// everything else is read back from the run row so a retried message always
// sees the latest configuration.
type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	receiver  messaging.Receiver

	dataDir          string
	dataManifest     dataset.Manifest
	localModelDir    string
	checkpointBucket string
	promptTemplate   string
	modelLoaders     map[ModelType]ModelLoader
}

func NewTaskProcessor(
	db *gorm.DB,
	store storage.ObjectStore,
	publisher messaging.Publisher,
	receiver messaging.Receiver,
	dataDir string,
	dataManifest dataset.Manifest,
	localModelDir string,
	checkpointBucket string,
	promptTemplate string,
	modelLoaders map[ModelType]ModelLoader,
) *TaskProcessor {
	if promptTemplate == "" {
		promptTemplate = DefaultPromptTemplate
	}
	return &TaskProcessor{
		db:               db,
		storage:          store,
		publisher:        publisher,
		receiver:         receiver,
		dataDir:          dataDir,
		dataManifest:     dataManifest,
		localModelDir:    localModelDir,
		checkpointBucket: checkpointBucket,
		promptTemplate:   promptTemplate,
		modelLoaders:     modelLoaders,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.receiver.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.receiver.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.FitQueue:
		var payload messaging.FitTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling fit task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processFitTask(ctx, payload)

	case messaging.EvalQueue:
		var payload messaging.EvalTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling eval task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processEvalTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) loadTaskDataset(taskName string) (dataset.TaskSpec, *dataset.Dataset, error) {
	spec, err := dataset.ResolveTask(taskName)
	if err != nil {
		return dataset.TaskSpec{}, nil, err
	}

	ds, err := spec.Load(dataset.LoadConfig{Root: proc.dataDir, Manifest: proc.dataManifest})
	if err != nil {
		return dataset.TaskSpec{}, nil, err
	}
	return spec, ds, nil
}

func (proc *TaskProcessor) getCheckpointDir(key string) string {
	return filepath.Join(proc.localModelDir, key)
}

// loadCheckpoint fetches a trained checkpoint from the checkpoint bucket if
// it is not already on disk, then hands it to the backend loader. An empty
// key loads the backend's base model.
func (proc *TaskProcessor) loadCheckpoint(ctx context.Context, modelType ModelType, checkpointKey string) (Model, error) {
	loader, ok := proc.modelLoaders[modelType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for model type %q", modelType)
	}

	var localDir string
	if checkpointKey != "" {
		localDir = proc.getCheckpointDir(checkpointKey)

		if _, err := os.Stat(localDir); os.IsNotExist(err) {
			slog.Info("checkpoint not found locally, downloading", "checkpoint_key", checkpointKey)

			if err := proc.storage.DownloadDir(ctx, proc.checkpointBucket, checkpointKey, localDir, false); err != nil {
				return nil, fmt.Errorf("failed to download checkpoint: %w", err)
			}
		}
	}

	model, err := loader(localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return model, nil
}

func (proc *TaskProcessor) processFitTask(ctx context.Context, payload messaging.FitTaskPayload) error {
	runId := payload.RunId

	slog.Info("processing fit task", "run_id", runId)

	var run database.TrainRun
	if err := proc.db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		slog.Error("error fetching train run", "run_id", runId, "error", err)
		return fmt.Errorf("error getting train run: %w", err)
	}

	if err := database.UpdateTrainRunStatus(ctx, proc.db, runId, database.RunRunning); err != nil {
		slog.Error("error marking train run as running", "run_id", runId, "error", err)
	}

	if err := proc.runFit(ctx, run); err != nil {
		database.FailTrainRun(ctx, proc.db, runId, err.Error())
		return fmt.Errorf("error running fit task: %w", err)
	}

	slog.Info("fit task completed successfully", "run_id", runId)
	return nil
}

const defaultShuffleSeed = 42

// shuffleSeed maps an unset run seed to the default so repeated submissions
// of the same request shuffle identically.
func shuffleSeed(seed int64) int64 {
	if seed == 0 {
		return defaultShuffleSeed
	}
	return seed
}

func (proc *TaskProcessor) runFit(ctx context.Context, run database.TrainRun) error {
	modelType, err := ParseModelType(run.ModelType)
	if err != nil {
		return err
	}

	var opts api.FitOptions
	if err := json.Unmarshal(run.Options, &opts); err != nil {
		return fmt.Errorf("error unmarshalling fit options: %w", err)
	}

	spec, ds, err := proc.loadTaskDataset(run.Task)
	if err != nil {
		return err
	}

	if run.DebugSampleSize > 0 {
		ds.Truncate(run.DebugSampleSize)
	}
	ds.ShuffleTrain(shuffleSeed(run.Seed))

	slog.Info("dataset loaded", "task", spec.Name, "train", len(ds.Train), "validation", len(ds.Validation), "test", len(ds.Test))

	train := FormatRecords(ds.Train, proc.promptTemplate, run.Workers)
	valid := FormatRecords(ds.Validation, proc.promptTemplate, run.Workers)

	model, err := proc.loadCheckpoint(ctx, modelType, "")
	if err != nil {
		return err
	}
	defer model.Release()

	if err := model.Fit(ctx, train, valid, opts); err != nil {
		return fmt.Errorf("error training model: %w", err)
	}

	localDir := proc.getCheckpointDir(run.Id.String())
	if err := os.MkdirAll(localDir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating checkpoint directory: %w", err)
	}

	if err := model.Save(ctx, localDir); err != nil {
		return fmt.Errorf("error saving model: %w", err)
	}

	if err := proc.storage.UploadDir(ctx, proc.checkpointBucket, run.Id.String(), localDir); err != nil {
		return fmt.Errorf("error uploading checkpoint: %w", err)
	}

	updates := map[string]any{
		"checkpoint_key": run.Id.String(),
	}
	if err := proc.db.WithContext(ctx).Model(&database.TrainRun{Id: run.Id}).Updates(updates).Error; err != nil {
		return fmt.Errorf("error recording checkpoint key: %w", err)
	}

	return database.UpdateTrainRunStatus(ctx, proc.db, run.Id, database.RunCompleted)
}

func (proc *TaskProcessor) processEvalTask(ctx context.Context, payload messaging.EvalTaskPayload) error {
	runId := payload.RunId

	slog.Info("processing eval task", "run_id", runId)

	var run database.EvalRun
	if err := proc.db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		slog.Error("error fetching eval run", "run_id", runId, "error", err)
		return fmt.Errorf("error getting eval run: %w", err)
	}

	if err := database.UpdateEvalRunStatus(ctx, proc.db, runId, database.RunRunning); err != nil {
		slog.Error("error marking eval run as running", "run_id", runId, "error", err)
	}

	if err := proc.runEval(ctx, run); err != nil {
		database.FailEvalRun(ctx, proc.db, runId, err.Error())
		return fmt.Errorf("error running eval task: %w", err)
	}

	slog.Info("eval task completed successfully", "run_id", runId)
	return nil
}

func evalSplit(spec dataset.TaskSpec, ds *dataset.Dataset) ([]dataset.Record, error) {
	var records []dataset.Record
	switch spec.EvalSplit {
	case "validation":
		records = ds.Validation
	default:
		records = ds.Test
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("task %s has no %s split", spec.Name, spec.EvalSplit)
	}
	return records, nil
}

func (proc *TaskProcessor) runEval(ctx context.Context, run database.EvalRun) error {
	modelType, err := ParseModelType(run.ModelType)
	if err != nil {
		return err
	}

	spec, ds, err := proc.loadTaskDataset(run.Task)
	if err != nil {
		return err
	}

	records, err := evalSplit(spec, ds)
	if err != nil {
		return err
	}

	filter, err := dataset.ParseFilter(run.Filter)
	if err != nil {
		return fmt.Errorf("error parsing record filter: %w", err)
	}
	records = dataset.FilterRecords(records, filter)
	if len(records) == 0 {
		return fmt.Errorf("record filter matched no records")
	}

	records = FormatRecords(records, proc.promptTemplate, run.Workers)

	model, err := proc.loadCheckpoint(ctx, modelType, run.CheckpointKey)
	if err != nil {
		return err
	}
	defer model.Release()

	if run.ConditionalPredictions {
		return proc.writeConditionalPredictions(ctx, run, model, records)
	}

	metrics, err := EvaluateRecords(ctx, model, records, spec.EvalLabelKind, run.BatchSize)
	if err != nil {
		return err
	}

	slog.Info("evaluation finished", "run_id", run.Id, "task", spec.Name, "corrcoef", metrics.Corrcoef, "accuracy", metrics.Accuracy)

	updates := map[string]any{
		"corrcoef": metrics.Corrcoef,
	}
	if spec.EvalLabelKind == dataset.LabelBinary {
		updates["accuracy"] = metrics.Accuracy
	}
	if err := proc.db.WithContext(ctx).Model(&database.EvalRun{Id: run.Id}).Updates(updates).Error; err != nil {
		return fmt.Errorf("error recording eval metrics: %w", err)
	}

	return database.UpdateEvalRunStatus(ctx, proc.db, run.Id, database.RunCompleted)
}

// PredictionsObjectName is the object written by conditional prediction
// runs, matching the submission format expected by the benchmark.
const PredictionsObjectName = "test_prediction.json"

func (proc *TaskProcessor) writeConditionalPredictions(ctx context.Context, run database.EvalRun, model Model, records []dataset.Record) error {
	preds, err := ConditionalPredictions(ctx, model, records, run.BatchSize)
	if err != nil {
		return err
	}

	data, err := json.Marshal(preds)
	if err != nil {
		return fmt.Errorf("error marshalling predictions: %w", err)
	}

	key := predictionsKey(run.Id)
	if err := proc.storage.PutObject(ctx, proc.checkpointBucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error uploading predictions: %w", err)
	}

	slog.Info("wrote conditional predictions", "run_id", run.Id, "predictions", len(preds), "key", key)

	if err := proc.db.WithContext(ctx).Model(&database.EvalRun{Id: run.Id}).Update("predictions_key", key).Error; err != nil {
		return fmt.Errorf("error recording predictions key: %w", err)
	}

	return database.UpdateEvalRunStatus(ctx, proc.db, run.Id, database.RunCompleted)
}

func predictionsKey(runId uuid.UUID) string {
	return runId.String() + "/" + PredictionsObjectName
}
