package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// cstsIndex tracks which conditions and labels each sentence pair was
// annotated with, and is used to deduplicate repeated (pair, condition)
// rows.
type cstsIndex struct {
	pairConditions map[Pair]map[string]struct{}
	pairLabels     map[Pair]map[float64]struct{}
	conditions     map[string]struct{}
}

func newCstsIndex() *cstsIndex {
	return &cstsIndex{
		pairConditions: make(map[Pair]map[string]struct{}),
		pairLabels:     make(map[Pair]map[float64]struct{}),
		conditions:     make(map[string]struct{}),
	}
}

// add records the row in the index and reports whether the (pair,
// condition) combination is new.
func (idx *cstsIndex) add(pair Pair, condition string, label float64) bool {
	idx.conditions[condition] = struct{}{}

	if idx.pairLabels[pair] == nil {
		idx.pairLabels[pair] = make(map[float64]struct{})
	}
	idx.pairLabels[pair][label] = struct{}{}

	if idx.pairConditions[pair] == nil {
		idx.pairConditions[pair] = make(map[string]struct{})
	}
	if _, seen := idx.pairConditions[pair][condition]; seen {
		return false
	}
	idx.pairConditions[pair][condition] = struct{}{}
	return true
}

// loadCstsSplit reads one conditional STS csv file. All text fields are
// trimmed, and repeated (pair, condition) rows collapse to the first
// occurrence so the output carries one record per pair and condition.
func loadCstsSplit(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening csts file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading csts header from %s: %w", path, err)
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"sentence1", "sentence2", "label", "condition"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("csts file %s missing column %q", path, required)
		}
	}

	index := newCstsIndex()
	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csts row from %s: %w", path, err)
		}

		label, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx["label"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable csts label in %s: %w", path, err)
		}

		record := Record{
			Text1:     strings.TrimSpace(row[colIdx["sentence1"]]),
			Text2:     strings.TrimSpace(row[colIdx["sentence2"]]),
			Label:     label,
			Condition: strings.TrimSpace(row[colIdx["condition"]]),
		}
		if err := record.Validate(); err != nil {
			return nil, err
		}

		pair := Pair{Text1: record.Text1, Text2: record.Text2}
		if !index.add(pair, record.Condition, record.Label) {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func loadCsts(cfg LoadConfig) (*Dataset, error) {
	ds := &Dataset{}

	var err error
	if ds.Train, err = loadCstsSplit(filepath.Join(cfg.Root, cfg.Manifest.Csts.Train)); err != nil {
		return nil, err
	}
	if ds.Validation, err = loadCstsSplit(filepath.Join(cfg.Root, cfg.Manifest.Csts.Validation)); err != nil {
		return nil, err
	}
	if ds.Test, err = loadCstsSplit(filepath.Join(cfg.Root, cfg.Manifest.Csts.Test)); err != nil {
		return nil, err
	}

	return ds, nil
}
