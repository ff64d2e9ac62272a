package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Task names accepted by the resolver.
const (
	TaskStsb        = "STS-B"
	TaskNliSts      = "NLI-STS"
	TaskMRPC        = "MRPC"
	TaskQQP         = "QQP"
	TaskQNLI        = "QNLI"
	TaskRTE         = "RTE"
	TaskCsts        = "C-STS"
	TaskStsbChatGPT = "STS-B-ChatGPT"
	TaskStsbLLaMA   = "STS-B-LLaMA"
	TaskStsbChatGLM = "STS-B-ChatGLM"
	TaskStsbAll     = "STS-B-ALL"
)

type LabelKind string

const (
	// LabelScore marks tasks whose labels are float similarity scores.
	LabelScore LabelKind = "score"
	// LabelBinary marks entailment-style tasks with 0/1 class labels.
	LabelBinary LabelKind = "binary"
)

// TaskSpec selects a loading strategy and the downstream label policy for a
// benchmark task.
type TaskSpec struct {
	Name      string
	LabelKind LabelKind

	// EvalLabelKind is the label kind of the eval split. It usually matches
	// LabelKind, but NLI-STS trains on binary entailment pairs and evaluates
	// on the aggregate STS test set, whose gold labels are float scores.
	EvalLabelKind LabelKind

	// EvalSplit is the partition evaluation runs on. QQP, QNLI, and RTE
	// have no public test labels, so they evaluate on validation.
	EvalSplit string

	// Conditioned is set for C-STS, whose records carry a condition.
	Conditioned bool

	load func(cfg LoadConfig) (*Dataset, error)
}

func (t TaskSpec) Load(cfg LoadConfig) (*Dataset, error) {
	if cfg.Manifest.StsbDir == "" {
		cfg.Manifest = DefaultManifest()
	}
	ds, err := t.load(cfg)
	if err != nil {
		return nil, fmt.Errorf("error loading task %s: %w", t.Name, err)
	}
	return ds, nil
}

// qnliRteRemap flips the source labels so that 1 means entailment.
var qnliRteRemap = map[string]float64{
	"1": 0,
	"0": 1,
}

var taskRegistry = map[string]TaskSpec{
	TaskStsb: {
		Name:          TaskStsb,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load: func(cfg LoadConfig) (*Dataset, error) {
			return loadHubDataset(filepath.Join(cfg.Root, cfg.Manifest.StsbDir), stsColumns, nil)
		},
	},
	TaskNliSts: {
		Name:          TaskNliSts,
		LabelKind:     LabelBinary,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load:          loadNliSts,
	},
	TaskMRPC: {
		Name:          TaskMRPC,
		LabelKind:     LabelBinary,
		EvalLabelKind: LabelBinary,
		EvalSplit:     "test",
		load:          pairTaskLoader(TaskMRPC, nil),
	},
	TaskQQP: {
		Name:          TaskQQP,
		LabelKind:     LabelBinary,
		EvalLabelKind: LabelBinary,
		EvalSplit:     "validation",
		load:          pairTaskLoader(TaskQQP, nil),
	},
	TaskQNLI: {
		Name:          TaskQNLI,
		LabelKind:     LabelBinary,
		EvalLabelKind: LabelBinary,
		EvalSplit:     "validation",
		load:          pairTaskLoader(TaskQNLI, qnliRteRemap),
	},
	TaskRTE: {
		Name:          TaskRTE,
		LabelKind:     LabelBinary,
		EvalLabelKind: LabelBinary,
		EvalSplit:     "validation",
		load:          pairTaskLoader(TaskRTE, qnliRteRemap),
	},
	TaskCsts: {
		Name:          TaskCsts,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		Conditioned:   true,
		load:          loadCsts,
	},
	TaskStsbChatGPT: {
		Name:          TaskStsbChatGPT,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load:          distilledStsbLoader(true, "chatgpt"),
	},
	TaskStsbLLaMA: {
		Name:          TaskStsbLLaMA,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load:          distilledStsbLoader(false, "llama"),
	},
	TaskStsbChatGLM: {
		Name:          TaskStsbChatGLM,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load:          distilledStsbLoader(false, "chatglm"),
	},
	TaskStsbAll: {
		Name:          TaskStsbAll,
		LabelKind:     LabelScore,
		EvalLabelKind: LabelScore,
		EvalSplit:     "test",
		load:          distilledStsbLoader(true, "chatgpt", "llama", "chatglm"),
	},
}

// ResolveTask maps a task name to its spec. An unrecognized name is a
// configuration error and aborts the run.
func ResolveTask(name string) (TaskSpec, error) {
	spec, ok := taskRegistry[name]
	if !ok {
		return TaskSpec{}, fmt.Errorf("unknown task %q, supported tasks: %v", name, TaskNames())
	}
	return spec, nil
}

func TaskNames() []string {
	names := make([]string, 0, len(taskRegistry))
	for name := range taskRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
