package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sts-backend/internal/core"
	"sts-backend/internal/database"
	"sts-backend/internal/dataset"
	"sts-backend/internal/messaging"
	"sts-backend/internal/storage"
	"sts-backend/pkg/api"
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	storage   storage.ObjectStore

	checkpointBucket string
}

func NewBackendService(db *gorm.DB, pub messaging.Publisher, store storage.ObjectStore, checkpointBucket string) *BackendService {
	return &BackendService{db: db, publisher: pub, storage: store, checkpointBucket: checkpointBucket}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListRuns))
		r.Post("/train", RestHandler(s.SubmitTrainRun))
		r.Post("/eval", RestHandler(s.SubmitEvalRun))
		r.Get("/{run_id}", RestHandler(s.GetRun))
		r.Get("/{run_id}/predictions", RestHandler(s.GetPredictions))
	})
	r.Get("/tasks", RestHandler(s.ListTasks))
}

func (s *BackendService) SubmitTrainRun(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateTrainRunRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			return nil, err
		}
	}

	if _, err := dataset.ResolveTask(req.Task); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	if _, err := core.ParseModelType(req.ModelType); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	options, err := json.Marshal(req.Options)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to serialize fit options: %v", err)
	}

	ctx := r.Context()

	run := database.TrainRun{
		Id:              uuid.New(),
		Name:            req.Name,
		Task:            req.Task,
		ModelType:       req.ModelType,
		Status:          database.RunQueued,
		Seed:            req.Seed,
		Workers:         req.Workers,
		DebugSampleSize: req.DebugSampleSize,
		Options:         datatypes.JSON(options),
		CreationTime:    time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating train run", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create train run entry")
	}

	if err := s.publisher.PublishFitTask(ctx, messaging.FitTaskPayload{RunId: run.Id}); err != nil {
		slog.Error("error publishing fit task", "run_id", run.Id, "error", err)
		database.FailTrainRun(ctx, s.db, run.Id, "failed to queue fit task")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue fit task")
	}

	slog.Info("submitted train run", "run_id", run.Id, "task", run.Task)
	return api.CreateTrainRunResponse{RunId: run.Id}, nil
}

func (s *BackendService) SubmitEvalRun(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateEvalRunRequest](r)
	if err != nil {
		return nil, err
	}

	spec, err := dataset.ResolveTask(req.Task)
	if err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	if _, err := core.ParseModelType(req.ModelType); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	if _, err := dataset.ParseFilter(req.Filter); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid record filter: %v", err)
	}

	if req.ConditionalPredictions && !spec.Conditioned {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "task %s has no conditions, conditional predictions are unavailable", spec.Name)
	}

	ctx := r.Context()

	run := database.EvalRun{
		Id:                     uuid.New(),
		Task:                   req.Task,
		ModelType:              req.ModelType,
		Status:                 database.RunQueued,
		CheckpointKey:          req.CheckpointKey,
		BatchSize:              req.BatchSize,
		Workers:                req.Workers,
		Filter:                 req.Filter,
		ConditionalPredictions: req.ConditionalPredictions,
		CreationTime:           time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating eval run", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create eval run entry")
	}

	if err := s.publisher.PublishEvalTask(ctx, messaging.EvalTaskPayload{RunId: run.Id}); err != nil {
		slog.Error("error publishing eval task", "run_id", run.Id, "error", err)
		database.FailEvalRun(ctx, s.db, run.Id, "failed to queue eval task")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue eval task")
	}

	slog.Info("submitted eval run", "run_id", run.Id, "task", run.Task)
	return api.CreateEvalRunResponse{RunId: run.Id}, nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var trainRun database.TrainRun
	err = s.db.WithContext(ctx).First(&trainRun, "id = ?", runId).Error
	if err == nil {
		return toApiTrainRun(trainRun), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("error getting train run", "run_id", runId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
	}

	var evalRun database.EvalRun
	err = s.db.WithContext(ctx).First(&evalRun, "id = ?", runId).Error
	if err == nil {
		return toApiEvalRun(evalRun), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "run not found")
	}
	slog.Error("error getting eval run", "run_id", runId, "error", err)
	return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
}

func (s *BackendService) ListRuns(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListRunsQuery](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	runs := make([]api.Run, 0)

	if params.Mode == "" || params.Mode == database.ModeTrain {
		query := s.db.WithContext(ctx).Model(&database.TrainRun{})
		if params.Status != "" {
			query = query.Where("status = ?", params.Status)
		}
		if params.Task != "" {
			query = query.Where("task = ?", params.Task)
		}

		var trainRuns []database.TrainRun
		if err := query.Find(&trainRuns).Error; err != nil {
			slog.Error("error listing train runs", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error listing runs")
		}
		for _, run := range trainRuns {
			runs = append(runs, toApiTrainRun(run))
		}
	}

	if params.Mode == "" || params.Mode == database.ModeEval {
		query := s.db.WithContext(ctx).Model(&database.EvalRun{})
		if params.Status != "" {
			query = query.Where("status = ?", params.Status)
		}
		if params.Task != "" {
			query = query.Where("task = ?", params.Task)
		}

		var evalRuns []database.EvalRun
		if err := query.Find(&evalRuns).Error; err != nil {
			slog.Error("error listing eval runs", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error listing runs")
		}
		for _, run := range evalRuns {
			runs = append(runs, toApiEvalRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreationTime.After(runs[j].CreationTime)
	})

	if params.Limit > 0 && len(runs) > params.Limit {
		runs = runs[:params.Limit]
	}

	return runs, nil
}

func (s *BackendService) GetPredictions(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var run database.EvalRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "run not found")
		}
		slog.Error("error getting eval run", "run_id", runId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
	}

	if !run.PredictionsKey.Valid {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "run has no predictions: status is %s", run.Status)
	}

	data, err := s.storage.GetObject(ctx, s.checkpointBucket, run.PredictionsKey.String)
	if err != nil {
		slog.Error("error fetching predictions object", "run_id", runId, "key", run.PredictionsKey.String, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error fetching predictions")
	}

	return json.RawMessage(data), nil
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	names := dataset.TaskNames()
	tasks := make([]api.TaskInfo, 0, len(names))
	for _, name := range names {
		spec, err := dataset.ResolveTask(name)
		if err != nil {
			continue
		}
		tasks = append(tasks, api.TaskInfo{
			Name:      spec.Name,
			LabelKind: string(spec.LabelKind),
			EvalSplit: spec.EvalSplit,
		})
	}
	return tasks, nil
}

func toApiTrainRun(run database.TrainRun) api.Run {
	out := api.Run{
		Id:            run.Id,
		Name:          run.Name,
		Task:          run.Task,
		ModelType:     run.ModelType,
		Mode:          database.ModeTrain,
		Status:        run.Status,
		CreationTime:  run.CreationTime,
		CheckpointKey: run.CheckpointKey,
	}
	if run.CompletionTime.Valid {
		t := run.CompletionTime.Time
		out.CompletionTime = &t
	}
	return out
}

func toApiEvalRun(run database.EvalRun) api.Run {
	out := api.Run{
		Id:            run.Id,
		Task:          run.Task,
		ModelType:     run.ModelType,
		Mode:          database.ModeEval,
		Status:        run.Status,
		CreationTime:  run.CreationTime,
		CheckpointKey: run.CheckpointKey,
	}
	if run.CompletionTime.Valid {
		t := run.CompletionTime.Time
		out.CompletionTime = &t
	}
	if run.Corrcoef.Valid {
		v := run.Corrcoef.Float64
		out.Corrcoef = &v
	}
	if run.Accuracy.Valid {
		v := run.Accuracy.Float64
		out.Accuracy = &v
	}
	return out
}
