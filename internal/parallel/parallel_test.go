package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	var counter int64
	n := 1000

	For(n, DefaultConfig(), func(_ int) {
		atomic.AddInt64(&counter, 1)
	})

	assert.Equal(t, int64(n), counter)
}

func TestForVisitsEachIndexOnce(t *testing.T) {
	seen := make([]int32, 257)
	For(len(seen), Config{Workers: 8, MinChunk: 3}, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForBatch(t *testing.T) {
	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, DefaultConfig(), func(b, c int) {
		results[b][c] = true
	})

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c], "missing [%d][%d]", b, c)
		}
	}
}

func TestForRangeChunksCoverInput(t *testing.T) {
	var mu sync.Mutex
	covered := 0
	ForRange(100, Config{Workers: 3, MinChunk: 1}, func(start, end int) {
		assert.Less(t, start, end)
		mu.Lock()
		covered += end - start
		mu.Unlock()
	})
	assert.Equal(t, 100, covered)
}

func TestSequentialRunsInline(t *testing.T) {
	calls := 0
	ForRange(10, Sequential(), func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestForEmpty(t *testing.T) {
	For(0, DefaultConfig(), func(_ int) {
		t.Fatal("must not be called")
	})
}
