package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// columns names the source fields a hub-style dataset uses for the sentence
// pair and the label.
type columns struct {
	Text1 string
	Text2 string
	Label string
}

// The STS family uses sentence1/sentence2/score, the SetFit
// pair-classification family uses text1/text2/label.
var (
	stsColumns  = columns{Text1: "sentence1", Text2: "sentence2", Label: "score"}
	pairColumns = columns{Text1: "text1", Text2: "text2", Label: "label"}
)

// maxLineBytes bounds a single jsonl line; sentence pairs are short, this
// only guards against reading a corrupt file into memory.
const maxLineBytes = 1024 * 1024

// labelKey renders a source label the way the remap tables are keyed:
// integral floats print without a decimal part.
func labelKey(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseLabel(value any, remap map[string]float64) (float64, error) {
	if value == nil {
		return 0, fmt.Errorf("missing label")
	}

	if remap != nil {
		if mapped, ok := remap[labelKey(value)]; ok {
			return mapped, nil
		}
	}

	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable label %q: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported label type %T", value)
	}
}

// loadHubSplit reads one split of a hub-style dataset directory: a jsonl
// file named after the split, one example per line.
func loadHubSplit(dir, split string, cols columns, remap map[string]float64) ([]Record, error) {
	path := filepath.Join(dir, split+".jsonl")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset split %s: %w", path, err)
	}
	defer file.Close()

	var records []Record

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("%s:%d: error parsing line: %w", path, lineNo, err)
		}

		text1, _ := row[cols.Text1].(string)
		text2, _ := row[cols.Text2].(string)
		label, err := parseLabel(row[cols.Label], remap)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}

		record := Record{Text1: text1, Text2: text2, Label: label}
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	return records, nil
}

func loadHubDataset(dir string, cols columns, remap map[string]float64) (*Dataset, error) {
	ds := &Dataset{}

	var err error
	if ds.Train, err = loadHubSplit(dir, "train", cols, remap); err != nil {
		return nil, err
	}
	if ds.Validation, err = loadHubSplit(dir, "validation", cols, remap); err != nil {
		return nil, err
	}
	if ds.Test, err = loadHubSplit(dir, "test", cols, remap); err != nil {
		return nil, err
	}

	return ds, nil
}

func pairTaskLoader(task string, remap map[string]float64) func(cfg LoadConfig) (*Dataset, error) {
	return func(cfg LoadConfig) (*Dataset, error) {
		dir, ok := cfg.Manifest.PairDirs[task]
		if !ok {
			return nil, fmt.Errorf("manifest has no dataset directory for task %s", task)
		}
		return loadHubDataset(filepath.Join(cfg.Root, dir), pairColumns, remap)
	}
}
