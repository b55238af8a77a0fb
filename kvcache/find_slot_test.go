package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inferd/kvcache/ml"
)

// Scenario 1: basic fill.
func TestFindSlotBasicFill(t *testing.T) {
	c := newTestCache(t, 8, false)

	slot, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)
	require.Equal(t, uint32(0), slot.Begin)
	require.Equal(t, uint32(3), slot.End)
	require.Equal(t, uint32(0), c.head)
	require.Equal(t, uint32(3), c.Used())
	require.Equal(t, int32(2), c.SeqPosMax(0))
}

// Scenario 2: wrap-around.
func TestFindSlotWrapAround(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	require.NoError(t, c.SeqRm(0, 0, 2))

	slot, err := c.FindSlot(ubatchSingleSeq(1, []int32{0, 1}))
	require.NoError(t, err)
	require.Equal(t, uint32(0), slot.Begin)
	require.Equal(t, uint32(2), slot.End)
	require.Equal(t, uint32(3), c.Used())
}

// Scenario 3: shift.
func TestFindSlotShift(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	c.SeqAdd(0, 0, 3, 10)
	require.True(t, c.HasShift())
	for i := 0; i < 3; i++ {
		require.Equal(t, int32(10+i), c.cells[i].pos)
		require.Equal(t, int32(10), c.cells[i].delta)
	}
}

// Scenario 4: copy.
func TestFindSlotCopy(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	c.SeqCp(0, 1, 0, -1)
	for i := 0; i < 3; i++ {
		require.True(t, c.cells[i].hasSeq(0))
		require.True(t, c.cells[i].hasSeq(1))
	}
	require.Equal(t, uint32(3), c.Used())
	require.Equal(t, int32(6), c.NTokens())
}

// Scenario 5: full-range rm with negative seq.
func TestFindSlotFullRangeRemove(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	require.NoError(t, c.SeqRm(-1, -1, -1))
	require.Equal(t, uint32(0), c.Used())
	require.Equal(t, uint32(0), c.head)
}

// Scenario 6: unique tail assignment (recurrent).
func TestFindSlotRecurrentUniqueTails(t *testing.T) {
	c := newTestCache(t, 4, true)

	ubatch := &ml.MicroBatch{
		NTokens:    2,
		NSeqs:      2,
		NSeqTokens: 1,
		EqualSeqs:  true,
		Pos:        []int32{5, 9},
		SeqID:      [][]int32{{0}, {2}},
	}

	slot, err := c.FindSlot(ubatch)
	require.NoError(t, err)
	require.Equal(t, uint32(2), c.n)
	require.Equal(t, uint32(2), slot.Len())

	tail0 := c.cells[0].tail
	tail2 := c.cells[2].tail
	require.NotEqual(t, tail0, tail2)
	require.ElementsMatch(t, []int32{0, 1}, []int32{tail0, tail2})
}

func TestFindSlotAttentionSlotTooLarge(t *testing.T) {
	c := newTestCache(t, 4, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2, 3, 4}))
	require.ErrorIs(t, err, ErrSlotTooLarge)
}

func TestFindSlotAttentionNoSlot(t *testing.T) {
	c := newTestCache(t, 4, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2, 3}))
	require.NoError(t, err)

	_, err = c.FindSlot(ubatchSingleSeq(1, []int32{0}))
	require.ErrorIs(t, err, ErrNoSlot)
}

func TestFindSlotRecurrentSeqIDOutOfRange(t *testing.T) {
	c := newTestCache(t, 4, true)
	ubatch := &ml.MicroBatch{
		NTokens: 1, NSeqs: 1, NSeqTokens: 1, EqualSeqs: true,
		Pos: []int32{0}, SeqID: [][]int32{{10}},
	}
	_, err := c.FindSlot(ubatch)
	require.ErrorIs(t, err, ErrSeqIDOutOfRange)
}
