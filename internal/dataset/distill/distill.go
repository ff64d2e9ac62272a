// Package distill produces LLM-supervised STS training files: an LLM scores
// unlabeled sentence pairs on the 0-5 similarity scale and the results are
// written as jsonl lines the distilled dataset loaders read back.
package distill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
)

const scoreSystemPrompt = "You are an annotator for semantic textual similarity. " +
	"Given two sentences, respond with a single number between 0 and 5 indicating how similar " +
	"their meanings are: 0 means completely unrelated and 5 means semantically equivalent. " +
	"Respond with the number only."

const scorePromptTemplate = "Sentence 1: %s\nSentence 2: %s\nSimilarity score:"

type ScoredPair struct {
	Sentence1 string  `json:"sentence1"`
	Sentence2 string  `json:"sentence2"`
	Score     float64 `json:"score"`
}

type Distiller struct {
	llm     LLM
	workers int
}

func NewDistiller(llm LLM, workers int) *Distiller {
	if workers < 1 {
		workers = 1
	}
	return &Distiller{llm: llm, workers: workers}
}

func parseScore(response string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(response))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty score response")
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", response, err)
	}
	if score < 0 || score > 5 {
		return 0, fmt.Errorf("score %v outside [0, 5]", score)
	}
	return score, nil
}

// ScorePairs asks the LLM to score every pair, preserving input order.
func (d *Distiller) ScorePairs(pairs [][2]string) ([]ScoredPair, error) {
	bar := progressbar.NewOptions(len(pairs),
		progressbar.OptionSetDescription("scoring pairs"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	out := make([]ScoredPair, len(pairs))
	errs := make([]error, len(pairs))

	indices := make(chan int, len(pairs))
	for i := range pairs {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	wg.Add(d.workers)
	for w := 0; w < d.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				prompt := fmt.Sprintf(scorePromptTemplate, pairs[i][0], pairs[i][1])
				response, err := d.llm.Generate(scoreSystemPrompt, prompt)
				if err != nil {
					errs[i] = err
					_ = bar.Add(1)
					continue
				}
				score, err := parseScore(response)
				if err != nil {
					errs[i] = err
					_ = bar.Add(1)
					continue
				}
				out[i] = ScoredPair{Sentence1: pairs[i][0], Sentence2: pairs[i][1], Score: score}
				_ = bar.Add(1)
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("error scoring pair %d: %w", i, err)
		}
	}

	return out, nil
}

// WriteJsonl writes scored pairs in the format the distilled loaders expect.
func WriteJsonl(path string, pairs []ScoredPair) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, pair := range pairs {
		if err := encoder.Encode(pair); err != nil {
			return fmt.Errorf("error writing scored pair: %w", err)
		}
	}

	return nil
}
