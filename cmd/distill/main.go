package main

import (
	"flag"
	"log"

	"sts-backend/internal/dataset"
	"sts-backend/internal/dataset/distill"
)

// Reads sentence pairs from an existing benchmark task and rewrites their
// labels with LLM-assigned similarity scores, producing the distilled jsonl
// files the STS-B-* task variants train on.

func main() {
	var (
		task    string
		split   string
		dataDir string
		output  string
		model   string
		temp    float64
		workers int
		limit   int
	)

	flag.StringVar(&task, "task", dataset.TaskStsb, "task to draw sentence pairs from")
	flag.StringVar(&split, "split", "train", "split to score (train, validation, test)")
	flag.StringVar(&dataDir, "data_dir", "data", "dataset root directory")
	flag.StringVar(&output, "output", "distilled.jsonl", "output jsonl path")
	flag.StringVar(&model, "model", "gpt-3.5-turbo", "scoring model")
	flag.Float64Var(&temp, "temperature", 1.0, "sampling temperature")
	flag.IntVar(&workers, "workers", 8, "concurrent scoring requests")
	flag.IntVar(&limit, "limit", 0, "score at most n pairs (0 for all)")
	flag.Parse()

	spec, err := dataset.ResolveTask(task)
	if err != nil {
		log.Fatalf("unknown task: %v", err)
	}

	ds, err := spec.Load(dataset.LoadConfig{Root: dataDir})
	if err != nil {
		log.Fatalf("error loading dataset: %v", err)
	}

	var records []dataset.Record
	switch split {
	case "train":
		records = ds.Train
	case "validation":
		records = ds.Validation
	case "test":
		records = ds.Test
	default:
		log.Fatalf("unknown split %q", split)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	pairs := make([][2]string, len(records))
	for i, rec := range records {
		pairs[i] = [2]string{rec.Text1, rec.Text2}
	}

	distiller := distill.NewDistiller(distill.NewOpenAI(model, temp), workers)

	scored, err := distiller.ScorePairs(pairs)
	if err != nil {
		log.Fatalf("error scoring pairs: %v", err)
	}

	if err := distill.WriteJsonl(output, scored); err != nil {
		log.Fatalf("error writing output: %v", err)
	}

	log.Printf("wrote %d scored pairs to %s", len(scored), output)
}
