package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelMap_PreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out, err := ParallelMap(context.Background(), in, 2, func(_ context.Context, _ int, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 40, 30, 20, 10}, out)
}

func TestParallelMap_RespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	in := make([]int, 16)
	_, err := ParallelMap(context.Background(), in, 3, func(_ context.Context, _ int, _ int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParallelMap_RunsInParallel(t *testing.T) {
	in := make([]int, 8)
	start := time.Now()
	_, err := ParallelMap(context.Background(), in, 0, func(_ context.Context, _ int, _ int) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 0, nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 8*30*time.Millisecond)
}

func TestParallelMap_Error(t *testing.T) {
	boom := errors.New("boom")
	out, err := ParallelMap(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestParallelMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	_, err := ParallelMap(ctx, []int{1, 2, 3}, 1, func(_ context.Context, _ int, _ int) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestParallelMute(t *testing.T) {
	var sum atomic.Int64
	ParallelMute([]int64{1, 2, 3, 4}, func(v int64) error {
		sum.Add(v)
		return errors.New("ignored")
	})
	assert.Equal(t, int64(10), sum.Load())
}
