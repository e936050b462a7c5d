package loader

import (
	"errors"
	"fmt"
)

var ErrInvalidWorkers = errors.New("loader: worker count must be positive")

// Batch splits items into at most n contiguous batches whose sizes differ by
// at most one. Order is preserved and no batch is empty.
func Batch[T any](items []T, n int) ([][]T, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, n)
	}
	if len(items) == 0 {
		return nil, nil
	}
	if n > len(items) {
		n = len(items)
	}

	batches := make([][]T, 0, n)
	size, extra := len(items)/n, len(items)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		batches = append(batches, items[start:end:end])
		start = end
	}
	return batches, nil
}
