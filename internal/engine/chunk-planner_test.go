package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanConcreteExample(t *testing.T) {
	ranges := Plan(10000, 10, 20)
	require.Len(t, ranges, 10)
	assert.Equal(t, Range{Start: 0, End: 999}, ranges[0])
	assert.Equal(t, int64(9999), ranges[9].End)
}

func TestPlanPartitions(t *testing.T) {
	tests := []struct {
		size     int64
		threads  int
		minChunk int64
		want     int
	}{
		{size: 10000, threads: 10, minChunk: 20, want: 10},
		{size: 1001, threads: 4, minChunk: 1, want: 4},
		{size: 100, threads: 5, minChunk: 50, want: 2},
		{size: 100, threads: 5, minChunk: 1000, want: 1},
		{size: 1, threads: 8, minChunk: 1, want: 1},
		{size: 7, threads: 3, minChunk: 2, want: 3},
		{size: 5 << 20, threads: 5, minChunk: 1 << 20, want: 5},
	}
	for _, tt := range tests {
		ranges := Plan(tt.size, tt.threads, tt.minChunk)
		require.Len(t, ranges, tt.want, "size=%d threads=%d", tt.size, tt.threads)
		var next, total int64
		for _, r := range ranges {
			assert.Equal(t, next, r.Start)
			assert.GreaterOrEqual(t, r.End, r.Start)
			next = r.End + 1
			total += r.Size()
		}
		assert.Equal(t, tt.size, total)
		assert.Equal(t, tt.size-1, ranges[len(ranges)-1].End)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	assert.Equal(t, Plan(123457, 7, 100), Plan(123457, 7, 100))
}

func TestPlanEmptyResource(t *testing.T) {
	ranges := Plan(0, 5, 1024)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(0), ranges[0].Size())
}

func TestPlanInvalidThreads(t *testing.T) {
	ranges := Plan(100, 0, 0)
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Start: 0, End: 99}, ranges[0])
}
