package netprocessing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightIndex(t *testing.T) {
	t.Run("claim is exclusive", func(t *testing.T) {
		idx := NewInFlightIndex()

		assert.True(t, idx.Claim(10, 1))
		assert.True(t, idx.Claim(10, 1), "claiming an owned height again is a no-op")
		assert.False(t, idx.Claim(10, 2))

		owner, ok := idx.Owner(10)
		require.True(t, ok)
		assert.Equal(t, PeerID(1), owner)
	})

	t.Run("only the owner releases", func(t *testing.T) {
		idx := NewInFlightIndex()
		idx.Claim(10, 1)

		assert.False(t, idx.Release(10, 2))
		assert.False(t, idx.Release(11, 1))
		assert.True(t, idx.Release(10, 1))

		_, ok := idx.Owner(10)
		assert.False(t, ok)
		assert.True(t, idx.Claim(10, 2))
	})

	t.Run("release all", func(t *testing.T) {
		idx := NewInFlightIndex()

		for h := int32(1); h <= 5; h++ {
			idx.Claim(h, 1)
		}

		idx.Claim(6, 2)

		assert.Equal(t, 5, idx.ReleaseAll(1))
		assert.Equal(t, 1, idx.Len())
		assert.Equal(t, 0, idx.ReleaseAll(1))
	})

	t.Run("concurrent claims have one winner per height", func(t *testing.T) {
		idx := NewInFlightIndex()

		const (
			peers   = 8
			heights = 500
		)

		won := make([][]int32, peers)

		var wg sync.WaitGroup

		for p := 0; p < peers; p++ {
			wg.Add(1)

			go func(p int) {
				defer wg.Done()

				for h := int32(0); h < heights; h++ {
					if idx.Claim(h, PeerID(p)) {
						won[p] = append(won[p], h)
					}
				}
			}(p)
		}

		wg.Wait()

		seen := make(map[int32]PeerID, heights)

		for p, claimed := range won {
			for _, h := range claimed {
				prev, dup := seen[h]
				require.False(t, dup, "height %d claimed by %d and %d", h, prev, p)

				seen[h] = PeerID(p)
			}
		}

		assert.Len(t, seen, heights)
		assert.Equal(t, heights, idx.Len())
	})

	t.Run("concurrent releases only free the caller's heights", func(t *testing.T) {
		idx := NewInFlightIndex()

		const heights = 200

		var wg sync.WaitGroup

		for p := 1; p <= 4; p++ {
			wg.Add(1)

			go func(id PeerID) {
				defer wg.Done()

				for round := 0; round < 20; round++ {
					for h := int32(0); h < heights; h++ {
						idx.Claim(h, id)
					}

					if id%2 == 0 {
						idx.ReleaseAll(id)
					}
				}
			}(PeerID(p))
		}

		wg.Wait()

		for h := int32(0); h < heights; h++ {
			owner, ok := idx.Owner(h)
			if !ok {
				continue
			}

			assert.Equal(t, PeerID(1), owner%2, "height %d still owned by releasing peer %d", h, owner)
		}
	})
}
