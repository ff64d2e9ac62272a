package dataset

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// nliLabelRemap collapses NLI labels into a binary similarity signal:
// entailment pairs are similar, contradiction pairs are not. Neutral rows
// are excluded before the remap applies.
var nliLabelRemap = map[string]float64{
	"entailment":    1,
	"contradiction": 0,
}

// loadAllNli reads the gzipped AllNLI tsv archive and keeps training rows
// with a non-neutral label. The file is tab separated with no quoting, so
// rows are split directly rather than run through a csv reader.
func loadAllNli(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening nli archive %s: %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("error decompressing nli archive %s: %w", path, err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error reading nli header: %w", err)
		}
		return nil, fmt.Errorf("nli archive %s is empty", path)
	}
	header := strings.Split(scanner.Text(), "\t")
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}
	for _, required := range []string{"split", "label", "sentence1", "sentence2"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("nli archive missing column %q", required)
		}
	}

	var records []Record
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		row := strings.Split(line, "\t")
		if len(row) != len(header) {
			return nil, fmt.Errorf("%s:%d: expected %d columns, got %d", path, lineNo, len(header), len(row))
		}

		if row[colIdx["split"]] != "train" {
			continue
		}
		label := row[colIdx["label"]]
		if label == "neutral" {
			continue
		}
		mapped, ok := nliLabelRemap[label]
		if !ok {
			return nil, fmt.Errorf("%s:%d: unexpected nli label %q", path, lineNo, label)
		}

		record := Record{
			Text1: strings.TrimSpace(row[colIdx["sentence1"]]),
			Text2: strings.TrimSpace(row[colIdx["sentence2"]]),
			Label: mapped,
		}
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading nli archive %s: %w", path, err)
	}

	return records, nil
}

// loadStsAggregate concatenates the test splits of the STS benchmark
// family, used as the evaluation set for NLI training.
func loadStsAggregate(root string, dirs []string) ([]Record, error) {
	var records []Record
	for _, dir := range dirs {
		split, err := loadHubSplit(filepath.Join(root, dir), "test", stsColumns, nil)
		if err != nil {
			return nil, err
		}
		records = append(records, split...)
	}
	return records, nil
}

func loadNliSts(cfg LoadConfig) (*Dataset, error) {
	train, err := loadAllNli(filepath.Join(cfg.Root, cfg.Manifest.NliArchive))
	if err != nil {
		return nil, err
	}

	test, err := loadStsAggregate(cfg.Root, cfg.Manifest.StsTestDirs)
	if err != nil {
		return nil, err
	}

	return &Dataset{Train: train, Test: test}, nil
}
