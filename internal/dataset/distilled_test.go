package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipNegative(t *testing.T) {
	// Only zero-score near duplicates are dropped.
	assert.True(t, SkipNegative("a man rides a bike", "a man rides a red bike", 0))
	assert.False(t, SkipNegative("a man rides a bike", "a man rides a red bike", 1.5))

	// A pair whose word-set difference reaches 5 is always kept.
	distant := "alpha beta gamma delta epsilon"
	assert.Equal(t, 5, WordSetDifference(distant, "zeta"))
	assert.False(t, SkipNegative(distant, "zeta", 0))

	assert.True(t, SkipNegative("one two three four", "five", 0))
}

func TestLoadDistilledJsonl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stsb.chatgpt.train.jsonl")
	writeFile(t, path, strings.Join([]string{
		`{"sentence1": "a dog runs", "sentence2": "a dog sprints", "score": 4.0}`,
		`{"sentence1": "a dog runs", "sentence2": "a dog runs fast", "score": 0.0}`,
		`{"sentence1": "alpha beta gamma delta epsilon", "sentence2": "unrelated", "score": 0.0}`,
	}, "\n"))

	kept, err := loadDistilledJsonl(path, true)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, 4.0, kept[0].Label)
	assert.Equal(t, "alpha beta gamma delta epsilon", kept[1].Text1)

	all, err := loadDistilledJsonl(path, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLoadDistilledJsonlMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	writeFile(t, path, `{"sentence1": "a"`)

	_, err := loadDistilledJsonl(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:1")
}

func TestDistilledTaskVariants(t *testing.T) {
	root := t.TempDir()
	writeStsbFixture(t, filepath.Join(root, "mteb___stsbenchmark-sts"))

	sources := map[string]string{
		"chatgpt": `{"sentence1": "a", "sentence2": "near a", "score": 0.0}` + "\n" +
			`{"sentence1": "b one", "sentence2": "b two", "score": 3.0}`,
		"llama":   `{"sentence1": "c", "sentence2": "near c", "score": 0.0}`,
		"chatglm": `{"sentence1": "d one", "sentence2": "d two", "score": 2.0}`,
	}
	for source, content := range sources {
		writeFile(t, filepath.Join(root, "llm_supervised_stsb", "stsb."+source+".train.jsonl"), content)
	}

	load := func(task string) *Dataset {
		spec, err := ResolveTask(task)
		require.NoError(t, err)
		ds, err := spec.Load(LoadConfig{Root: root})
		require.NoError(t, err)
		return ds
	}

	// ChatGPT variant filters zero-score near duplicates.
	assert.Len(t, load(TaskStsbChatGPT).Train, 1)

	// LLaMA and ChatGLM variants keep everything.
	assert.Len(t, load(TaskStsbLLaMA).Train, 1)
	assert.Len(t, load(TaskStsbChatGLM).Train, 1)

	// ALL concatenates the three sources with filtering on.
	all := load(TaskStsbAll)
	assert.Len(t, all.Train, 2)

	// validation and test always come from the human-annotated benchmark
	assert.Len(t, all.Validation, 1)
	assert.Len(t, all.Test, 1)
}
