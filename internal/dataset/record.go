package dataset

import (
	"fmt"
	"strings"
)

// Record is the normalized form every loader produces: a sentence pair with
// either a float similarity score or a binary class label. Conditional STS
// records additionally carry the condition the similarity is judged under.
type Record struct {
	Text1     string
	Text2     string
	Label     float64
	Condition string `json:"Condition,omitempty"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.Text1) == "" || strings.TrimSpace(r.Text2) == "" {
		return fmt.Errorf("record has empty sentence: text1=%q text2=%q", r.Text1, r.Text2)
	}
	return nil
}

// Pair is the key used for C-STS deduplication bookkeeping.
type Pair struct {
	Text1 string
	Text2 string
}

func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		words[w] = struct{}{}
	}
	return words
}

// WordSetDifference counts the words of text1 that do not occur in text2.
func WordSetDifference(text1, text2 string) int {
	set2 := wordSet(text2)
	count := 0
	for w := range wordSet(text1) {
		if _, ok := set2[w]; !ok {
			count++
		}
	}
	return count
}
