package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickLevelFIFO(t *testing.T) {
	lvl := NewTickLevel(100)
	require.True(t, lvl.Empty())

	lvl.PushBack(&Order{ID: 1, Quantity: 10})
	lvl.PushBack(&Order{ID: 2, Quantity: 20})
	lvl.PushBack(&Order{ID: 3, Quantity: 30})
	require.Equal(t, 3, lvl.Len())

	assert.Equal(t, uint64(1), lvl.Front().ID)
	assert.Equal(t, uint64(1), lvl.PopFront().ID)
	assert.Equal(t, uint64(2), lvl.Front().ID)
}

func TestTickLevelRemoveKeepsOrder(t *testing.T) {
	lvl := NewTickLevel(100)
	for id := uint64(1); id <= 4; id++ {
		lvl.PushBack(&Order{ID: id})
	}

	o, ok := lvl.Remove(2)
	require.True(t, ok)
	assert.Equal(t, uint64(2), o.ID)

	_, ok = lvl.Remove(2)
	assert.False(t, ok)

	var ids []uint64
	for _, o := range lvl.Orders() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []uint64{1, 3, 4}, ids)
}

func TestTickLevelGet(t *testing.T) {
	lvl := NewTickLevel(100)
	lvl.PushBack(&Order{ID: 7, Quantity: 5})

	o, ok := lvl.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(5), o.Quantity)

	_, ok = lvl.Get(8)
	assert.False(t, ok)

	lvl.PopFront()
	_, ok = lvl.Get(7)
	assert.False(t, ok)
}
