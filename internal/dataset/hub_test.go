package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writeStsbFixture(t *testing.T, dir string) {
	writeFile(t, filepath.Join(dir, "train.jsonl"), strings.Join([]string{
		`{"sentence1": "a plane is taking off", "sentence2": "an air plane is taking off", "score": 5.0}`,
		`{"sentence1": "a man is playing a flute", "sentence2": "a man is eating", "score": 1.2}`,
		`{"sentence1": "two dogs run", "sentence2": "a cat sleeps", "score": 0.0}`,
	}, "\n"))
	writeFile(t, filepath.Join(dir, "validation.jsonl"),
		`{"sentence1": "a woman is slicing an onion", "sentence2": "a woman is cutting an onion", "score": 4.5}`)
	writeFile(t, filepath.Join(dir, "test.jsonl"),
		`{"sentence1": "a girl is styling her hair", "sentence2": "a girl is brushing her hair", "score": 2.5}`)
}

func TestLoadStsb(t *testing.T) {
	root := t.TempDir()
	writeStsbFixture(t, filepath.Join(root, "mteb___stsbenchmark-sts"))

	spec, err := ResolveTask(TaskStsb)
	require.NoError(t, err)
	assert.Equal(t, LabelScore, spec.LabelKind)
	assert.Equal(t, "test", spec.EvalSplit)

	ds, err := spec.Load(LoadConfig{Root: root})
	require.NoError(t, err)

	assert.Len(t, ds.Train, 3)
	assert.Len(t, ds.Validation, 1)
	assert.Len(t, ds.Test, 1)

	for _, rec := range ds.Train {
		assert.GreaterOrEqual(t, rec.Label, 0.0)
		assert.LessOrEqual(t, rec.Label, 5.0)
	}
	assert.Equal(t, 5.0, ds.Train[0].Label)
	assert.Equal(t, "a plane is taking off", ds.Train[0].Text1)
}

func TestLoadHubSplitMalformedLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.jsonl"), strings.Join([]string{
		`{"sentence1": "ok", "sentence2": "ok", "score": 1.0}`,
		`{not valid json`,
	}, "\n"))

	_, err := loadHubSplit(dir, "train", stsColumns, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train.jsonl:2")
}

func TestLoadHubSplitEmptySentence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.jsonl"),
		`{"sentence1": "", "sentence2": "ok", "score": 1.0}`)

	_, err := loadHubSplit(dir, "train", stsColumns, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty sentence")
}

func TestLoadHubSplitMissingLabel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.jsonl"),
		`{"sentence1": "a", "sentence2": "b"}`)

	_, err := loadHubSplit(dir, "train", stsColumns, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing label")
}

func TestLoadHubSplitMissingFile(t *testing.T) {
	_, err := loadHubSplit(t.TempDir(), "train", stsColumns, nil)
	assert.Error(t, err)
}

func writePairFixture(t *testing.T, dir string, labels []string) {
	var lines []string
	for i, label := range labels {
		lines = append(lines, `{"text1": "question `+string(rune('a'+i))+`", "text2": "other question", "label": `+label+`}`)
	}
	content := strings.Join(lines, "\n")
	writeFile(t, filepath.Join(dir, "train.jsonl"), content)
	writeFile(t, filepath.Join(dir, "validation.jsonl"), content)
	writeFile(t, filepath.Join(dir, "test.jsonl"), content)
}

func TestQnliRemapFlipsLabels(t *testing.T) {
	root := t.TempDir()
	writePairFixture(t, filepath.Join(root, "setfit___qnli"), []string{"0", "1", "0"})

	spec, err := ResolveTask(TaskQNLI)
	require.NoError(t, err)
	assert.Equal(t, "validation", spec.EvalSplit)

	ds, err := spec.Load(LoadConfig{Root: root})
	require.NoError(t, err)

	// Source 0 means entailment for QNLI, so it maps to 1 and vice versa.
	assert.Equal(t, []float64{1, 0, 1}, []float64{ds.Train[0].Label, ds.Train[1].Label, ds.Train[2].Label})
}

func TestRteRemapIsBijective(t *testing.T) {
	root := t.TempDir()
	writePairFixture(t, filepath.Join(root, "setfit___rte"), []string{"0", "1"})

	spec, err := ResolveTask(TaskRTE)
	require.NoError(t, err)

	ds, err := spec.Load(LoadConfig{Root: root})
	require.NoError(t, err)

	seen := map[float64]float64{}
	sources := []float64{0, 1}
	for i, rec := range ds.Train {
		seen[sources[i]] = rec.Label
	}
	assert.Equal(t, map[float64]float64{0: 1, 1: 0}, seen)
}

func TestMrpcKeepsSourceLabels(t *testing.T) {
	root := t.TempDir()
	writePairFixture(t, filepath.Join(root, "setfit___mrpc"), []string{"1", "0"})

	spec, err := ResolveTask(TaskMRPC)
	require.NoError(t, err)
	assert.Equal(t, "test", spec.EvalSplit)

	ds, err := spec.Load(LoadConfig{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ds.Train[0].Label)
	assert.Equal(t, 0.0, ds.Train[1].Label)
}
