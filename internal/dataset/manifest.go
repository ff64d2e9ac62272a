package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Manifest describes where each task's source files live, relative to the
// data root. Every field has a default matching the standard layout, so a
// manifest file only needs to name the paths that differ.
type Manifest struct {
	StsbDir string `yaml:"stsb_dir"`

	// PairDirs maps the pair-classification tasks to their hub directories.
	PairDirs map[string]string `yaml:"pair_dirs"`

	NliArchive  string   `yaml:"nli_archive"`
	StsTestDirs []string `yaml:"sts_test_dirs"`

	Csts struct {
		Train      string `yaml:"train"`
		Validation string `yaml:"validation"`
		Test       string `yaml:"test"`
	} `yaml:"csts"`

	Distilled map[string]string `yaml:"distilled"`
}

func DefaultManifest() Manifest {
	var m Manifest
	m.StsbDir = "mteb___stsbenchmark-sts"
	m.PairDirs = map[string]string{
		TaskMRPC: "setfit___mrpc",
		TaskQQP:  "setfit___qqp",
		TaskQNLI: "setfit___qnli",
		TaskRTE:  "setfit___rte",
	}
	m.NliArchive = "AllNLI.tsv.gz"
	m.StsTestDirs = []string{
		"mteb___sts12-sts",
		"mteb___sts13-sts",
		"mteb___sts14-sts",
		"mteb___sts15-sts",
		"mteb___sts16-sts",
		"mteb___stsbenchmark-sts",
		"mteb___sickr-sts",
	}
	m.Csts.Train = "csts_train.csv"
	m.Csts.Validation = "csts_validation.csv"
	m.Csts.Test = "csts_test.csv"
	m.Distilled = map[string]string{
		"chatgpt": "llm_supervised_stsb/stsb.chatgpt.train.jsonl",
		"llama":   "llm_supervised_stsb/stsb.llama.train.jsonl",
		"chatglm": "llm_supervised_stsb/stsb.chatglm.train.jsonl",
	}
	return m
}

// LoadManifest reads a manifest file and fills unset fields with defaults.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()

	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("error reading manifest %s: %w", path, err)
	}

	var overrides Manifest
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return m, fmt.Errorf("error parsing manifest %s: %w", path, err)
	}

	if overrides.StsbDir != "" {
		m.StsbDir = overrides.StsbDir
	}
	for task, dir := range overrides.PairDirs {
		m.PairDirs[task] = dir
	}
	if overrides.NliArchive != "" {
		m.NliArchive = overrides.NliArchive
	}
	if len(overrides.StsTestDirs) > 0 {
		m.StsTestDirs = overrides.StsTestDirs
	}
	if overrides.Csts.Train != "" {
		m.Csts.Train = overrides.Csts.Train
	}
	if overrides.Csts.Validation != "" {
		m.Csts.Validation = overrides.Csts.Validation
	}
	if overrides.Csts.Test != "" {
		m.Csts.Test = overrides.Csts.Test
	}
	for source, path := range overrides.Distilled {
		m.Distilled[source] = path
	}

	return m, nil
}

// LoadConfig carries everything a task loader needs to locate its sources.
type LoadConfig struct {
	Root     string
	Manifest Manifest
}
