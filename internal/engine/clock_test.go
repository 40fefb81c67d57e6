package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var _ SeqClock = (*Clock)(nil)

func TestClock_StartPositions(t *testing.T) {
	tests := []struct {
		name      string
		clock     *Clock
		wantFirst int64
	}{
		{"fresh run", NewClock(), 1},
		{"resumed after seq 7", NewClockAt(7), 8},
		{"resumed empty journal", NewClockAt(0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := tt.clock.Current()
			assert.Equal(t, tt.wantFirst, tt.clock.Next())
			assert.Equal(t, start+1, tt.clock.Current(), "Current reports the last stamped seq")
			assert.Equal(t, tt.wantFirst, tt.clock.Current(), "Current does not advance")
		})
	}
}

// Concurrent sends share one clock; every stamp must be distinct and the
// set must be gap-free so journaled traces sort back into send order.
func TestClock_ConcurrentStampsAreGapFree(t *testing.T) {
	c := NewClockAt(100)
	const workers, perWorker = 16, 250

	stamps := make([][]int64, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				stamps[w] = append(stamps[w], c.Next())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]struct{}, workers*perWorker)
	for _, s := range stamps {
		for i, seq := range s {
			if i > 0 {
				assert.Greater(t, seq, s[i-1], "a worker's stamps increase")
			}
			seen[seq] = struct{}{}
		}
	}
	require.Len(t, seen, workers*perWorker)
	for seq := int64(101); seq <= 100+workers*perWorker; seq++ {
		_, ok := seen[seq]
		assert.True(t, ok, "seq %d missing", seq)
	}
	assert.Equal(t, int64(100+workers*perWorker), c.Current())
}
