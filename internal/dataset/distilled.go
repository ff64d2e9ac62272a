package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// skipNegThreshold is the minimum word-set difference below which a
// zero-score pair is considered a near duplicate and dropped.
const skipNegThreshold = 5

type distilledRow struct {
	Sentence1 string  `json:"sentence1"`
	Sentence2 string  `json:"sentence2"`
	Score     float64 `json:"score"`
}

// SkipNegative reports whether a zero-score pair should be dropped because
// the sentences are nearly identical. Pairs whose word-set difference is at
// least skipNegThreshold are always kept.
func SkipNegative(text1, text2 string, score float64) bool {
	return score == 0 && WordSetDifference(text1, text2) < skipNegThreshold
}

// loadDistilledJsonl reads an LLM-supervised STS file: one json object per
// line with sentence1/sentence2/score fields.
func loadDistilledJsonl(path string, skipNeg bool) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening distilled dataset %s: %w", path, err)
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

		var row distilledRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("%s:%d: error parsing line: %w", path, lineNo, err)
		}

		if skipNeg && SkipNegative(row.Sentence1, row.Sentence2, row.Score) {
			continue
		}

		record := Record{Text1: row.Sentence1, Text2: row.Sentence2, Label: row.Score}
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

// distilledStsbLoader trains on LLM-supervised score files and keeps the
// human-annotated STS-B splits for validation and test.
func distilledStsbLoader(skipNeg bool, sources ...string) func(cfg LoadConfig) (*Dataset, error) {
	return func(cfg LoadConfig) (*Dataset, error) {
		var train []Record
		for _, source := range sources {
			path, ok := cfg.Manifest.Distilled[source]
			if !ok {
				return nil, fmt.Errorf("manifest has no distilled dataset for source %q", source)
			}
			records, err := loadDistilledJsonl(filepath.Join(cfg.Root, path), skipNeg)
			if err != nil {
				return nil, err
			}
			train = append(train, records...)
		}

		stsb, err := loadHubDataset(filepath.Join(cfg.Root, cfg.Manifest.StsbDir), stsColumns, nil)
		if err != nil {
			return nil, err
		}

		return &Dataset{Train: train, Validation: stsb.Validation, Test: stsb.Test}, nil
	}
}
