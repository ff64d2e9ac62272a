package dataset

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTaskUnknown(t *testing.T) {
	_, err := ResolveTask("STSB")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown task "STSB"`)
	assert.Contains(t, err.Error(), TaskStsb, "error should list supported tasks")
}

func TestResolveTaskKnown(t *testing.T) {
	for _, name := range TaskNames() {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, name, spec.Name)
		assert.NotEmpty(t, spec.EvalSplit)
	}
}

func TestTaskNamesSorted(t *testing.T) {
	names := TaskNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, TaskCsts)
	assert.Contains(t, names, TaskStsbAll)
	assert.Len(t, names, 11)
}

func TestTaskLabelKinds(t *testing.T) {
	score := []string{TaskStsb, TaskCsts, TaskStsbChatGPT, TaskStsbLLaMA, TaskStsbChatGLM, TaskStsbAll}
	for _, name := range score {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, LabelScore, spec.LabelKind, name)
	}

	binary := []string{TaskNliSts, TaskMRPC, TaskQQP, TaskQNLI, TaskRTE}
	for _, name := range binary {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, LabelBinary, spec.LabelKind, name)
	}
}

func TestEvalLabelKinds(t *testing.T) {
	// NLI-STS trains on binary entailment pairs but evaluates on the STS
	// aggregate, whose gold labels are float scores.
	nli, err := ResolveTask(TaskNliSts)
	require.NoError(t, err)
	assert.Equal(t, LabelBinary, nli.LabelKind)
	assert.Equal(t, LabelScore, nli.EvalLabelKind)

	for _, name := range TaskNames() {
		if name == TaskNliSts {
			continue
		}
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, spec.LabelKind, spec.EvalLabelKind, name)
	}
}

func TestEvalSplits(t *testing.T) {
	// QQP, QNLI, and RTE have no public test labels.
	for _, name := range []string{TaskQQP, TaskQNLI, TaskRTE} {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, "validation", spec.EvalSplit, name)
	}
	for _, name := range []string{TaskStsb, TaskNliSts, TaskMRPC, TaskCsts} {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, "test", spec.EvalSplit, name)
	}
}

func TestOnlyCstsIsConditioned(t *testing.T) {
	for _, name := range TaskNames() {
		spec, err := ResolveTask(name)
		require.NoError(t, err)
		assert.Equal(t, name == TaskCsts, spec.Conditioned, name)
	}
}
