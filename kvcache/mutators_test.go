package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeqAddIdempotentOnPos(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	before := make([]int32, 3)
	for i := range before {
		before[i] = c.cells[i].pos
	}

	c.SeqAdd(0, 0, 3, 7)
	c.SeqAdd(0, 0, 3, -7)

	for i := range before {
		require.Equal(t, before[i], c.cells[i].pos)
	}
}

func TestSeqDiv(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{4, 8, 12}))
	require.NoError(t, err)

	c.SeqDiv(0, 0, 100, 2)
	require.Equal(t, int32(2), c.cells[0].pos)
	require.Equal(t, int32(4), c.cells[1].pos)
	require.Equal(t, int32(6), c.cells[2].pos)
}

func TestSeqKeep(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)
	c.SeqCp(0, 1, 0, -1)

	c.SeqKeep(1)
	for i := 0; i < 3; i++ {
		require.False(t, c.cells[i].hasSeq(0))
		require.True(t, c.cells[i].hasSeq(1))
	}
}

func TestSeqPosMaxEmpty(t *testing.T) {
	c := newTestCache(t, 8, false)
	require.Equal(t, int32(0), c.SeqPosMax(0))
}

func TestSeqRmPartialRecurrentErase(t *testing.T) {
	c := newTestCache(t, 4, true)
	ubatch := ubatchSingleSeq(0, []int32{5})
	ubatch.NSeqTokens = 1
	_, err := c.FindSlot(ubatch)
	require.NoError(t, err)

	err = c.SeqRm(0, 1, 3)
	require.ErrorIs(t, err, ErrPartialRecurrentErase)
}

func TestSeqRmRecurrentSeqOutOfRange(t *testing.T) {
	c := newTestCache(t, 4, true)
	err := c.SeqRm(4, -1, -1)
	require.ErrorIs(t, err, ErrSeqIDOutOfRange)
}

func TestDefragFlag(t *testing.T) {
	c := newTestCache(t, 8, false)
	require.False(t, c.DoDefrag())
	c.Defrag()
	require.True(t, c.DoDefrag())
	c.ClearDefrag()
	require.False(t, c.DoDefrag())

	recurrent := newTestCache(t, 8, true)
	recurrent.Defrag()
	require.False(t, recurrent.DoDefrag())
}

func TestResetShift(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)
	c.SeqAdd(0, 0, 3, 5)
	require.True(t, c.HasShift())

	c.ResetShift()
	require.False(t, c.HasShift())
	for i := 0; i < 3; i++ {
		require.Equal(t, int32(0), c.cells[i].delta)
	}
}
