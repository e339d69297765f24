package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForEachRunsEveryItem(t *testing.T) {
	var sum atomic.Int64
	err := ForEach(context.Background(), []int{1, 2, 3, 4}, 2, func(_ context.Context, v int) error {
		sum.Add(int64(v))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), sum.Load())
}

func TestForEachRespectsLimit(t *testing.T) {
	var active, peak atomic.Int32
	items := make([]int, 32)
	err := ForEach(context.Background(), items, 3, func(context.Context, int) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		active.Add(-1)
		return nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach(context.Background(), []int{1, 2, 3}, 0, func(_ context.Context, v int) error {
		if v == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, []int{1}, 1, func(context.Context, int) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestParallelMapPreservesOrder(t *testing.T) {
	out := ParallelMap([]int{1, 2, 3, 4, 5}, 2, func(v int) int { return v * v })
	require.Equal(t, []int{1, 4, 9, 16, 25}, out)
}
