package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	r := NewRing[int](4)

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	assert.Equal(t, 2, r.Size())

	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Read()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = r.Read()
	assert.False(t, ok)
}

func TestDropOldest(t *testing.T) {
	var dropped []int
	r := NewRing(2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback(func(v int) { dropped = append(dropped, v) }))

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	require.NoError(t, r.Write(3))

	assert.Equal(t, []int{1}, dropped)
	assert.Equal(t, uint64(1), r.Drops())

	batch := r.ReadBatch(10)
	assert.Equal(t, []int{2, 3}, batch)
}

func TestDropNewest(t *testing.T) {
	r := NewRing(2, WithOverflowPolicy[int](DropNewest))

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	require.NoError(t, r.Write(3))

	assert.Equal(t, uint64(1), r.Drops())
	assert.Equal(t, []int{1, 2}, r.ReadBatch(10))
}

func TestReadBatchPartial(t *testing.T) {
	r := NewRing[string](8)
	require.NoError(t, r.Write("a"))
	require.NoError(t, r.Write("b"))

	assert.Equal(t, []string{"a", "b"}, r.ReadBatch(5))
	assert.Nil(t, r.ReadBatch(5))
}

func TestClose(t *testing.T) {
	r := NewRing[int](2)
	require.NoError(t, r.Write(1))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Error(t, r.Write(2))

	// Buffered items stay readable after close
	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestConcurrentWriters(t *testing.T) {
	r := NewRing[int](1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Write(i*100 + j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, r.Size())
	assert.Equal(t, uint64(0), r.Drops())
}

func TestWraparound(t *testing.T) {
	r := NewRing[int](3)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Write(i))
		v, ok := r.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
