package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPartition_CountsAndOrder(t *testing.T) {
	for _, tc := range []struct{ n, k int }{
		{0, 10}, {1, 10}, {9, 10}, {10, 10}, {11, 10}, {23, 10}, {30, 10}, {7, 1}, {5, 20},
	} {
		items := seq(tc.n)
		batches := Partition(items, tc.k)

		assert.Len(t, batches, (tc.n+tc.k-1)/tc.k, "n=%d k=%d", tc.n, tc.k)
		var flat []int
		for _, b := range batches {
			assert.LessOrEqual(t, len(b), tc.k)
			assert.NotEmpty(t, b)
			flat = append(flat, b...)
		}
		if tc.n == 0 {
			assert.Empty(t, flat)
			continue
		}
		assert.Equal(t, items, flat, "n=%d k=%d", tc.n, tc.k)
	}
}

func TestPartition_TwentyThreeByTen(t *testing.T) {
	batches := Partition(seq(23), 10)
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestPartition_AppendDoesNotClobberNextBatch(t *testing.T) {
	items := seq(4)
	batches := Partition(items, 2)
	_ = append(batches[0], 99)
	assert.Equal(t, []int{2, 3}, batches[1])
}

func TestPartition_NonPositiveSize(t *testing.T) {
	assert.Len(t, Partition(seq(3), 0), 3)
}
