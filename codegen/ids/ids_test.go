package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_UniqueAndIncreasing(t *testing.T) {
	g, err := NewGenerator(7)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 5000; i++ {
		id := g.NextID()
		require.Greater(t, id, prev)
		prev = id
	}
	_, node := Parse(prev)
	assert.Equal(t, int64(7), node)
}

func TestGenerator_Concurrent(t *testing.T) {
	g, err := NewGenerator(3)
	require.NoError(t, err)

	const goroutines, perG = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perG)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perG)
			for j := 0; j < perG; j++ {
				local = append(local, g.NextID())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perG)
}

func TestNewGenerator_RejectsBadNode(t *testing.T) {
	_, err := NewGenerator(-1)
	assert.Error(t, err)
	_, err = NewGenerator(MaxNode + 1)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	require.NoError(t, SetDefaultNode(2))
	id := NextID()
	_, node := Parse(id)
	assert.Equal(t, int64(2), node)
	assert.NotEmpty(t, Format(id))

	_, err := uuid.Parse(NewUUID())
	assert.NoError(t, err)
	assert.Error(t, SetDefaultNode(5000))
}
