package kvcache

import (
	"github.com/emirpasic/gods/v2/sets/treeset"
)

// noPos marks a position field as unset.
const noPos int32 = -1

// cell is one logical slot in the cache. In attention mode it corresponds to
// one column of every layer's K and V tensor; in recurrent mode it holds one
// sequence's state snapshot, and its own index may additionally serve as the
// anchor for that sequence's tail pointer (see the tail field below for the
// dual-role explanation).
type cell struct {
	// pos is the token position this cell holds; noPos means empty.
	pos int32

	// delta is the lazy positional shift accumulated since the host last
	// consumed has_shift; only meaningful in attention mode.
	delta int32

	// src is the source cell index for recurrent state copies; noPos when
	// unused.
	src int32

	// tail is meaningful only when this cell's own index is used as a
	// sequence id: it names the cell currently holding that sequence's
	// state, or noPos if the sequence has none. Cells that are never used
	// as a sequence-id slot leave this at noPos and nothing reads it.
	tail int32

	// seqIDs is the set of sequence ids currently referencing this cell.
	// An empty set is the definition of an empty cell.
	seqIDs *treeset.Set[int32]
}

func newCell() cell {
	return cell{
		pos:    noPos,
		delta:  0,
		src:    noPos,
		tail:   noPos,
		seqIDs: treeset.New[int32](),
	}
}

func (c *cell) empty() bool {
	return c.seqIDs.Empty()
}

func (c *cell) hasSeq(seq int32) bool {
	return c.seqIDs.Contains(seq)
}

// reset clears every field back to its empty-cell state, matching clear()'s
// per-cell reset in the original.
func (c *cell) reset() {
	c.pos = noPos
	c.delta = 0
	c.src = noPos
	c.tail = noPos
	c.seqIDs.Clear()
}
