package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	ort "github.com/yalue/onnxruntime_go"

	"sts-backend/internal/core"
	"sts-backend/internal/dataset"
	"sts-backend/pkg/api"
)

// Modes of the one-shot runner.
const (
	modeTrain    = "train"
	modeTest     = "test"
	modeTestCsts = "test_csts"
)

type localArgs struct {
	mode    string
	task    string
	saveDir string

	modelType  string
	trainerURL string
	onnxLib    string

	dataDir  string
	manifest string

	seed            int64
	workers         int
	debugSampleSize int
	doEval          bool
	filter          string
	prompt          string

	opts api.FitOptions
}

func parseArgs() localArgs {
	var args localArgs

	flag.StringVar(&args.mode, "mode", modeTrain, "one of train, test, test_csts")
	flag.StringVar(&args.task, "task", dataset.TaskStsb, "benchmark task to run")
	flag.StringVar(&args.saveDir, "save_dir", "ckpts/sts", "checkpoint directory")

	flag.StringVar(&args.modelType, "model_type", string(core.RemoteTrainer), "model backend (remote or onnx)")
	flag.StringVar(&args.trainerURL, "trainer_url", "http://localhost:8002", "embedding trainer url")
	flag.StringVar(&args.onnxLib, "onnx_lib", os.Getenv("ONNX_RUNTIME_DYLIB"), "path to onnxruntime shared library")

	flag.StringVar(&args.dataDir, "data_dir", "data", "dataset root directory")
	flag.StringVar(&args.manifest, "manifest", "", "optional yaml manifest overriding dataset locations")

	flag.Int64Var(&args.seed, "seed", 42, "random seed")
	flag.IntVar(&args.workers, "workers", 25, "parallel workers for record formatting")
	flag.IntVar(&args.debugSampleSize, "debug_sample_size", 0, "truncate the train split for debugging")
	flag.BoolVar(&args.doEval, "do_eval", true, "evaluate after training")
	flag.StringVar(&args.filter, "filter", "", `record filter, e.g. 'label > 0.5 AND text1 CONTAINS "dog"'`)
	flag.StringVar(&args.prompt, "prompt", core.DefaultPromptTemplate, "prompt template applied to each sentence")

	flag.IntVar(&args.opts.Epochs, "epochs", 10, "training epochs")
	flag.IntVar(&args.opts.BatchSize, "batch_size", 32, "batch size")
	flag.Float64Var(&args.opts.LearningRate, "learning_rate", 1e-5, "learning rate")
	flag.IntVar(&args.opts.WarmupSteps, "warmup_steps", 100, "warmup steps")
	flag.IntVar(&args.opts.SaveSteps, "save_steps", 100, "checkpoint every n steps")
	flag.IntVar(&args.opts.EvalSteps, "eval_steps", 1000, "evaluate every n steps")
	flag.IntVar(&args.opts.GradAccumSteps, "gradient_accumulation_steps", 1, "gradient accumulation steps")
	flag.IntVar(&args.opts.MaxLength, "maxlength", 128, "max token length")
	flag.StringVar(&args.opts.PoolingStrategy, "pooling_strategy", "cls", "pooling strategy (avg, cls, cls_avg, first_last_avg)")
	flag.IntVar(&args.opts.LoadKbit, "load_kbit", 0, "quantized loading (4, 8, 16, or 0 for full precision)")

	flag.Float64Var(&args.opts.Loss.W1, "w1", 1.0, "cosine loss weight")
	flag.Float64Var(&args.opts.Loss.W2, "w2", 35.0, "in-batch negative loss weight")
	flag.Float64Var(&args.opts.Loss.W3, "w3", 1.0, "angle loss weight")
	flag.Float64Var(&args.opts.Loss.CosineTau, "cosine_tau", 20.0, "cosine loss temperature")
	flag.Float64Var(&args.opts.Loss.IbnTau, "ibn_tau", 20.0, "in-batch negative loss temperature")
	flag.Float64Var(&args.opts.Loss.AngleTau, "angle_tau", 1.0, "angle loss temperature")

	flag.BoolVar(&args.opts.Lora.Apply, "apply_lora", false, "train lora adapters instead of full weights")
	flag.IntVar(&args.opts.Lora.R, "lora_r", 32, "lora rank")
	flag.IntVar(&args.opts.Lora.Alpha, "lora_alpha", 32, "lora alpha")
	flag.Float64Var(&args.opts.Lora.Dropout, "lora_dropout", 0.1, "lora dropout")

	flag.Parse()

	return args
}

func loadTaskDataset(args localArgs) (dataset.TaskSpec, *dataset.Dataset, error) {
	spec, err := dataset.ResolveTask(args.task)
	if err != nil {
		return dataset.TaskSpec{}, nil, err
	}

	manifest := dataset.DefaultManifest()
	if args.manifest != "" {
		manifest, err = dataset.LoadManifest(args.manifest)
		if err != nil {
			return dataset.TaskSpec{}, nil, err
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("loading %s", spec.Name)),
		progressbar.OptionSpinnerType(14),
	)
	ds, err := spec.Load(dataset.LoadConfig{Root: args.dataDir, Manifest: manifest})
	bar.Finish() //nolint:errcheck
	fmt.Println()
	if err != nil {
		return dataset.TaskSpec{}, nil, err
	}
	return spec, ds, nil
}

func loadModel(args localArgs, checkpointDir string) (core.Model, error) {
	modelType, err := core.ParseModelType(args.modelType)
	if err != nil {
		return nil, err
	}

	if modelType == core.OnnxEncoder {
		if args.onnxLib == "" {
			return nil, fmt.Errorf("onnx backend requires -onnx_lib or ONNX_RUNTIME_DYLIB")
		}
		ort.SetSharedLibraryPath(args.onnxLib)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	loaders := core.NewModelLoaders(args.trainerURL)
	return loaders[modelType](checkpointDir)
}

func evalRecords(spec dataset.TaskSpec, ds *dataset.Dataset) []dataset.Record {
	if spec.EvalSplit == "validation" {
		return ds.Validation
	}
	return ds.Test
}

func runTrain(ctx context.Context, args localArgs) error {
	spec, ds, err := loadTaskDataset(args)
	if err != nil {
		return err
	}

	if args.debugSampleSize > 0 {
		ds.Truncate(args.debugSampleSize)
	}
	ds.ShuffleTrain(args.seed)

	log.Printf("task %s: %d train / %d validation / %d test records", spec.Name, len(ds.Train), len(ds.Validation), len(ds.Test))

	train := core.FormatRecords(ds.Train, args.prompt, args.workers)
	valid := core.FormatRecords(ds.Validation, args.prompt, args.workers)

	model, err := loadModel(args, "")
	if err != nil {
		return err
	}
	defer model.Release()

	if err := model.Fit(ctx, train, valid, args.opts); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if err := os.MkdirAll(args.saveDir, os.ModePerm); err != nil {
		return err
	}
	if err := model.Save(ctx, args.saveDir); err != nil {
		return fmt.Errorf("saving checkpoint failed: %w", err)
	}
	log.Printf("checkpoint saved to %s", args.saveDir)

	if !args.doEval {
		return nil
	}

	records := core.FormatRecords(evalRecords(spec, ds), args.prompt, args.workers)
	metrics, err := core.EvaluateRecords(ctx, model, records, spec.EvalLabelKind, args.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	printMetrics(spec, metrics)
	return nil
}

func runTest(ctx context.Context, args localArgs) error {
	spec, ds, err := loadTaskDataset(args)
	if err != nil {
		return err
	}

	records := evalRecords(spec, ds)

	filter, err := dataset.ParseFilter(args.filter)
	if err != nil {
		return fmt.Errorf("invalid record filter: %w", err)
	}
	records = dataset.FilterRecords(records, filter)
	if len(records) == 0 {
		return fmt.Errorf("record filter matched no records")
	}
	records = core.FormatRecords(records, args.prompt, args.workers)

	model, err := loadModel(args, args.saveDir)
	if err != nil {
		return err
	}
	defer model.Release()

	metrics, err := core.EvaluateRecords(ctx, model, records, spec.EvalLabelKind, args.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	printMetrics(spec, metrics)
	return nil
}

func runTestCsts(ctx context.Context, args localArgs) error {
	spec, ds, err := loadTaskDataset(args)
	if err != nil {
		return err
	}
	if !spec.Conditioned {
		return fmt.Errorf("task %s has no conditions, use -mode test", spec.Name)
	}

	records := core.FormatRecords(ds.Test, args.prompt, args.workers)

	model, err := loadModel(args, args.saveDir)
	if err != nil {
		return err
	}
	defer model.Release()

	preds, err := core.ConditionalPredictions(ctx, model, records, args.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	outPath := filepath.Join(args.saveDir, core.PredictionsObjectName)
	data, err := json.Marshal(preds)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return err
	}
	log.Printf("wrote %d predictions to %s", len(preds), outPath)
	return nil
}

func printMetrics(spec dataset.TaskSpec, metrics core.EvalMetrics) {
	fmt.Printf("%s spearman corrcoef: %.4f\n", spec.Name, metrics.Corrcoef)
	if spec.EvalLabelKind == dataset.LabelBinary {
		fmt.Printf("%s accuracy: %.4f\n", spec.Name, metrics.Accuracy)
	}
}

func main() {
	args := parseArgs()

	ctx := context.Background()

	var err error
	switch strings.ToLower(args.mode) {
	case modeTrain:
		err = runTrain(ctx, args)
	case modeTest:
		err = runTest(ctx, args)
	case modeTestCsts:
		err = runTestCsts(ctx, args)
	default:
		err = fmt.Errorf("unknown mode %q, expected train, test, or test_csts", args.mode)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", args.mode, err)
	}
}
