package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	backend "sts-backend/internal/api"
	"sts-backend/internal/database"
	"sts-backend/internal/dataset"
	"sts-backend/internal/messaging"
	"sts-backend/internal/storage"
	"sts-backend/pkg/api"
)

const testBucket = "checkpoints"

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type testEnv struct {
	db     *gorm.DB
	queue  *messaging.InMemoryQueue
	store  storage.ObjectStore
	router chi.Router
}

func setup(t *testing.T, create ...any) testEnv {
	db := createDB(t, create...)
	queue := messaging.NewInMemoryQueue()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(context.Background(), testBucket))

	service := backend.NewBackendService(db, queue, store, testBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testEnv{db: db, queue: queue, store: store, router: router}
}

func (env testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTrainRun(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/runs/train", api.CreateTrainRunRequest{
		Name:      "stsb-baseline",
		Task:      dataset.TaskStsb,
		ModelType: "remote",
		Seed:      42,
		Options:   api.FitOptions{Epochs: 5},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.CreateTrainRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	var run database.TrainRun
	require.NoError(t, env.db.First(&run, "id = ?", resp.RunId).Error)
	assert.Equal(t, database.RunQueued, run.Status)
	assert.Equal(t, dataset.TaskStsb, run.Task)
	assert.Equal(t, int64(42), run.Seed)

	var opts api.FitOptions
	require.NoError(t, json.Unmarshal(run.Options, &opts))
	assert.Equal(t, 5, opts.Epochs)

	// a fit task was queued for the run
	select {
	case task := <-env.queue.Tasks():
		assert.Equal(t, messaging.FitQueue, task.Type())
		var payload messaging.FitTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, resp.RunId, payload.RunId)
	default:
		t.Fatal("no fit task queued")
	}
}

func TestSubmitTrainRunValidation(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/runs/train", api.CreateTrainRunRequest{
		Task: "bogus", ModelType: "remote",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/runs/train", api.CreateTrainRunRequest{
		Task: dataset.TaskStsb, ModelType: "tensorflow",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/runs/train", api.CreateTrainRunRequest{
		Name: "bad name!", Task: dataset.TaskStsb, ModelType: "remote",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitEvalRun(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/runs/eval", api.CreateEvalRunRequest{
		Task:          dataset.TaskQNLI,
		ModelType:     "remote",
		CheckpointKey: "abc",
		Filter:        `label > 0.5`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.CreateEvalRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	var run database.EvalRun
	require.NoError(t, env.db.First(&run, "id = ?", resp.RunId).Error)
	assert.Equal(t, database.RunQueued, run.Status)
	assert.Equal(t, "abc", run.CheckpointKey)

	select {
	case task := <-env.queue.Tasks():
		assert.Equal(t, messaging.EvalQueue, task.Type())
	default:
		t.Fatal("no eval task queued")
	}
}

func TestSubmitEvalRunValidation(t *testing.T) {
	env := setup(t)

	// malformed filter expression
	rec := env.do(t, http.MethodPost, "/runs/eval", api.CreateEvalRunRequest{
		Task: dataset.TaskStsb, ModelType: "remote", Filter: `label >`,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// conditional predictions on a task without conditions
	rec = env.do(t, http.MethodPost, "/runs/eval", api.CreateEvalRunRequest{
		Task: dataset.TaskStsb, ModelType: "remote", ConditionalPredictions: true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/runs/eval", api.CreateEvalRunRequest{
		Task: dataset.TaskCsts, ModelType: "remote", ConditionalPredictions: true,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRun(t *testing.T) {
	trainId, evalId := uuid.New(), uuid.New()
	env := setup(t,
		&database.TrainRun{
			Id: trainId, Name: "run1", Task: dataset.TaskStsb, ModelType: "remote",
			Status: database.RunCompleted, CheckpointKey: trainId.String(),
			CreationTime:   time.Now().UTC(),
			CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
		},
		&database.EvalRun{
			Id: evalId, Task: dataset.TaskQNLI, ModelType: "remote",
			Status:       database.RunCompleted,
			Corrcoef:     sql.NullFloat64{Float64: 0.85, Valid: true},
			Accuracy:     sql.NullFloat64{Float64: 0.91, Valid: true},
			CreationTime: time.Now().UTC(),
		},
	)

	rec := env.do(t, http.MethodGet, "/runs/"+trainId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run api.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, database.ModeTrain, run.Mode)
	assert.Equal(t, "run1", run.Name)
	assert.NotNil(t, run.CompletionTime)
	assert.Nil(t, run.Corrcoef)

	rec = env.do(t, http.MethodGet, "/runs/"+evalId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, database.ModeEval, run.Mode)
	require.NotNil(t, run.Corrcoef)
	assert.Equal(t, 0.85, *run.Corrcoef)
	require.NotNil(t, run.Accuracy)
	assert.Equal(t, 0.91, *run.Accuracy)

	rec = env.do(t, http.MethodGet, "/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRuns(t *testing.T) {
	now := time.Now().UTC()
	env := setup(t,
		&database.TrainRun{Id: uuid.New(), Task: dataset.TaskStsb, ModelType: "remote", Status: database.RunCompleted, CreationTime: now.Add(-2 * time.Hour)},
		&database.TrainRun{Id: uuid.New(), Task: dataset.TaskQNLI, ModelType: "remote", Status: database.RunRunning, CreationTime: now.Add(-1 * time.Hour)},
		&database.EvalRun{Id: uuid.New(), Task: dataset.TaskStsb, ModelType: "remote", Status: database.RunCompleted, CreationTime: now},
	)

	var runs []api.Run

	rec := env.do(t, http.MethodGet, "/runs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 3)
	// newest first
	assert.Equal(t, database.ModeEval, runs[0].Mode)

	rec = env.do(t, http.MethodGet, "/runs/?mode=train", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = env.do(t, http.MethodGet, "/runs/?status=COMPLETED&task=STS-B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = env.do(t, http.MethodGet, "/runs/?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestGetPredictions(t *testing.T) {
	runId := uuid.New()
	key := runId.String() + "/test_prediction.json"
	env := setup(t, &database.EvalRun{
		Id: runId, Task: dataset.TaskCsts, ModelType: "remote",
		Status:         database.RunCompleted,
		PredictionsKey: sql.NullString{String: key, Valid: true},
		CreationTime:   time.Now().UTC(),
	})

	predictions := map[string]float64{"0": 0.93, "1": 0.12}
	data, err := json.Marshal(predictions)
	require.NoError(t, err)
	require.NoError(t, env.store.PutObject(context.Background(), testBucket, key, bytes.NewReader(data)))

	rec := env.do(t, http.MethodGet, "/runs/"+runId.String()+"/predictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, predictions, got)
}

func TestGetPredictionsUnavailable(t *testing.T) {
	runId := uuid.New()
	env := setup(t, &database.EvalRun{
		Id: runId, Task: dataset.TaskCsts, ModelType: "remote",
		Status: database.RunRunning, CreationTime: time.Now().UTC(),
	})

	rec := env.do(t, http.MethodGet, "/runs/"+runId.String()+"/predictions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListTasks(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []api.TaskInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 11)

	byName := map[string]api.TaskInfo{}
	for _, task := range tasks {
		byName[task.Name] = task
	}
	assert.Equal(t, "validation", byName[dataset.TaskQNLI].EvalSplit)
	assert.Equal(t, "score", byName[dataset.TaskStsb].LabelKind)
}

func TestHealth(t *testing.T) {
	env := setup(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
