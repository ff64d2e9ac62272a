package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cstsHeader = "sentence1,sentence2,label,condition"

func writeCsts(t *testing.T, path string, rows ...string) {
	writeFile(t, path, cstsHeader+"\n"+strings.Join(rows, "\n"))
}

func TestLoadCstsSplitDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csts_train.csv")
	writeCsts(t, path,
		`a dog in a park,a cat in a park,1.0,the animal`,
		`a dog in a park,a cat in a park,4.0,the location`,
		`a dog in a park,a cat in a park,2.0,the animal`,
		`a different pair,another sentence,3.0,the animal`,
	)

	records, err := loadCstsSplit(path)
	require.NoError(t, err)

	// one record per (pair, condition); the repeated row collapses to the
	// first occurrence
	require.Len(t, records, 3)
	assert.Equal(t, 1.0, records[0].Label)
	assert.Equal(t, "the animal", records[0].Condition)
	assert.Equal(t, "the location", records[1].Condition)
	assert.Equal(t, "a different pair", records[2].Text1)
}

func TestLoadCstsSplitTrimsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csts_train.csv")
	writeCsts(t, path, `  padded sentence ,  other sentence , 2.5 ,  the condition  `)

	records, err := loadCstsSplit(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "padded sentence", records[0].Text1)
	assert.Equal(t, "other sentence", records[0].Text2)
	assert.Equal(t, 2.5, records[0].Label)
	assert.Equal(t, "the condition", records[0].Condition)
}

func TestLoadCstsSplitBadLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csts_train.csv")
	writeCsts(t, path, `a,b,not-a-number,c`)

	_, err := loadCstsSplit(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable csts label")
}

func TestLoadCstsSplitMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csts_train.csv")
	writeFile(t, path, "sentence1,sentence2,label\na,b,1.0")

	_, err := loadCstsSplit(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "condition"`)
}

func TestLoadCstsTask(t *testing.T) {
	root := t.TempDir()
	row := `a dog in a park,a cat in a park,1.0,the animal`
	writeCsts(t, filepath.Join(root, "csts_train.csv"), row)
	writeCsts(t, filepath.Join(root, "csts_validation.csv"), row)
	writeCsts(t, filepath.Join(root, "csts_test.csv"), row)

	spec, err := ResolveTask(TaskCsts)
	require.NoError(t, err)
	assert.True(t, spec.Conditioned)

	ds, err := spec.Load(LoadConfig{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Size())
	assert.Equal(t, "the animal", ds.Test[0].Condition)
}
