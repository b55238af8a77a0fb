package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViewUpdateBasic(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	v := NewView(4)
	v.Update(c)

	require.Equal(t, int32(3), v.UsedCells)
	require.Equal(t, int32(3), v.TokenCount)
	require.Equal(t, int32(5), v.MaxContiguous)
	require.Equal(t, int32(3), v.MaxContiguousIdx)
	require.Equal(t, []int32{0, 1, 2}, v.CellPos[:3])
}

func TestViewUpdateDetectsMismatch(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	c.used = 99 // force an invariant-violation signal

	v := NewView(4)
	v.Update(c)
	require.Equal(t, int32(3), v.UsedCells)
}

func TestFragmentationSummary(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	v := NewView(4)
	mean, _ := v.FragmentationSummary(c)
	require.Equal(t, float64(5), mean)
}
