package dataset

import (
	"fmt"
	"math/rand"
	"sync"
)

// Dataset groups normalized records into the partitions the trainer expects.
// Validation and Test may be empty depending on the task.
type Dataset struct {
	Train      []Record
	Validation []Record
	Test       []Record
}

// Truncate limits the training partition, used for debug sample sizes.
func (d *Dataset) Truncate(n int) {
	if n > 0 && n < len(d.Train) {
		d.Train = d.Train[:n]
	}
}

// ShuffleTrain permutes the training partition with the given seed. The
// other partitions keep their source order so evaluation output lines up
// with example indices.
func (d *Dataset) ShuffleTrain(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.Train), func(i, j int) {
		d.Train[i], d.Train[j] = d.Train[j], d.Train[i]
	})
}

func (d *Dataset) Size() int {
	return len(d.Train) + len(d.Validation) + len(d.Test)
}

// MapRecords applies fn to every record using the given number of workers,
// preserving record order. A worker count below 2 runs sequentially.
func MapRecords(records []Record, workers int, fn func(Record) (Record, error)) ([]Record, error) {
	out := make([]Record, len(records))

	if workers < 2 || len(records) < 2 {
		for i, r := range records {
			mapped, err := fn(r)
			if err != nil {
				return nil, fmt.Errorf("error mapping record %d: %w", i, err)
			}
			out[i] = mapped
		}
		return out, nil
	}

	if workers > len(records) {
		workers = len(records)
	}

	indices := make(chan int, len(records))
	for i := range records {
		indices <- i
	}
	close(indices)

	errs := make(chan error, workers)

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				mapped, err := fn(records[i])
				if err != nil {
					errs <- fmt.Errorf("error mapping record %d: %w", i, err)
					return
				}
				out[i] = mapped
			}
		}()
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}
