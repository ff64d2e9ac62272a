package core

import (
	"context"
	"fmt"
	"math"
	"sort"

	"sts-backend/internal/dataset"
)

// L2Normalize scales the vector to unit length in place. Zero vectors are
// left untouched.
func L2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// ranks assigns tie-averaged ranks, matching scipy's rankdata.
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// ranks are 1-based; ties share the average rank of their block
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// SpearmanCorrelation is the Pearson correlation of the tie-averaged ranks.
func SpearmanCorrelation(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("need at least 2 observations, got %d", len(x))
	}
	return pearson(ranks(x), ranks(y)), nil
}

// BestThresholdAccuracy sweeps candidate decision thresholds over the
// similarity scores and returns the best binary classification accuracy.
func BestThresholdAccuracy(scores, labels []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	best := 0.0
	for i := 0; i <= len(sorted); i++ {
		var threshold float64
		switch {
		case i == 0:
			threshold = sorted[0] - 1
		case i == len(sorted):
			threshold = sorted[len(sorted)-1] + 1
		default:
			threshold = (sorted[i-1] + sorted[i]) / 2
		}

		correct := 0
		for j := range scores {
			pred := 0.0
			if scores[j] >= threshold {
				pred = 1.0
			}
			if pred == labels[j] {
				correct++
			}
		}
		if acc := float64(correct) / float64(len(scores)); acc > best {
			best = acc
		}
	}
	return best
}

// PairSimilarities encodes both sides of each record interleaved in batches
// and returns the per-pair cosine similarities.
func PairSimilarities(ctx context.Context, model Model, records []dataset.Record, batchSize int) ([]float64, error) {
	if batchSize < 1 {
		batchSize = 32
	}
	// Batches hold whole pairs so a pair never straddles two requests.
	pairsPerBatch := (batchSize + 1) / 2

	sims := make([]float64, 0, len(records))
	for start := 0; start < len(records); start += pairsPerBatch {
		end := start + pairsPerBatch
		if end > len(records) {
			end = len(records)
		}

		texts := make([]string, 0, (end-start)*2)
		for _, rec := range records[start:end] {
			texts = append(texts, rec.Text1, rec.Text2)
		}

		embeddings, err := model.Encode(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("encoding batch at %d: %w", start, err)
		}
		for i := 0; i < len(embeddings); i += 2 {
			sims = append(sims, CosineSimilarity(embeddings[i], embeddings[i+1]))
		}
	}
	return sims, nil
}

type EvalMetrics struct {
	Corrcoef float64
	Accuracy float64
}

// EvaluateRecords scores a model on labeled pairs. Score tasks report the
// Spearman correlation of cosine similarity against gold scores; binary
// tasks additionally report best-threshold accuracy.
func EvaluateRecords(ctx context.Context, model Model, records []dataset.Record, labelKind dataset.LabelKind, batchSize int) (EvalMetrics, error) {
	if len(records) == 0 {
		return EvalMetrics{}, fmt.Errorf("no records to evaluate")
	}

	sims, err := PairSimilarities(ctx, model, records, batchSize)
	if err != nil {
		return EvalMetrics{}, err
	}

	labels := make([]float64, len(records))
	for i, rec := range records {
		labels[i] = rec.Label
	}

	corr, err := SpearmanCorrelation(sims, labels)
	if err != nil {
		return EvalMetrics{}, err
	}

	metrics := EvalMetrics{Corrcoef: corr}
	if labelKind == dataset.LabelBinary {
		metrics.Accuracy = BestThresholdAccuracy(sims, labels)
	}
	return metrics, nil
}

// ConditionalPredictions maps each record's position to its cosine
// similarity, the submission format for conditional similarity test sets.
func ConditionalPredictions(ctx context.Context, model Model, records []dataset.Record, batchSize int) (map[string]float64, error) {
	sims, err := PairSimilarities(ctx, model, records, batchSize)
	if err != nil {
		return nil, err
	}
	preds := make(map[string]float64, len(sims))
	for i, sim := range sims {
		preds[fmt.Sprintf("%d", i)] = sim
	}
	return preds, nil
}
