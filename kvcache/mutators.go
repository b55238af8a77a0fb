package kvcache

import (
	"fmt"
	"math"
)

func normalizeRange(p0, p1 int32) (int32, int32) {
	if p0 < 0 {
		p0 = 0
	}
	if p1 < 0 {
		p1 = math.MaxInt32
	}
	return p0, p1
}

// SeqRm erases sequence seq's state in the half-open range [p0, p1). A
// negative p0/p1 means "from the start" / "to infinity". Passing a negative
// seq clears every sequence touching the range.
//
// In recurrent mode, a range that only partially overlaps the sequence's
// single state snapshot cannot be represented and returns
// ErrPartialRecurrentErase: recurrent states cannot be truncated, only
// erased in full. A seq >= size is out of range and returns
// ErrSeqIDOutOfRange rather than silently succeeding.
func (c *Cache) SeqRm(seq int32, p0, p1 int32) error {
	newHead := c.size
	p0, p1 = normalizeRange(p0, p1)

	if c.recurrent {
		if seq >= int32(c.size) {
			return fmt.Errorf("%w: seq=%d >= size=%d", ErrSeqIDOutOfRange, seq, c.size)
		}
		if seq >= 0 {
			tailID := &c.cells[seq].tail
			if *tailID >= 0 {
				cellPos := c.cells[*tailID].pos
				if (0 < p0 && p0 <= cellPos) || (0 < p1 && p1 <= cellPos) {
					return ErrPartialRecurrentErase
				}
				if p0 <= cellPos && cellPos < p1 {
					*tailID = noPos
				}
			}
		} else {
			if p0 != p1 && (p0 != 0 || p1 != math.MaxInt32) {
				return ErrPartialRecurrentErase
			}
		}
	}

	for i := range c.cells {
		cell := &c.cells[i]
		if cell.pos < p0 || cell.pos >= p1 {
			continue
		}
		if seq < 0 {
			cell.seqIDs.Clear()
		} else if cell.hasSeq(seq) {
			cell.seqIDs.Remove(seq)
		} else {
			continue
		}
		if cell.empty() {
			if cell.pos >= 0 {
				c.used--
			}
			cell.pos = noPos
			cell.src = noPos
			if newHead == c.size {
				newHead = uint32(i)
			}
		}
	}

	if newHead != c.size && newHead < c.head {
		c.head = newHead
	}
	return nil
}

// SeqCp makes dst additionally reference every cell src references within
// [p0, p1). In recurrent mode this detaches dst from its current tail and
// re-points it at src's tail; the range is ignored because recurrent
// sequences have only one state snapshot.
func (c *Cache) SeqCp(src, dst int32, p0, p1 int32) {
	if src == dst {
		return
	}
	p0, p1 = normalizeRange(p0, p1)

	if c.recurrent {
		if uint32(dst) < c.size && uint32(src) < c.size {
			tailSrc := &c.cells[src]
			tailDst := &c.cells[dst]
			if tailDst.tail >= 0 {
				cellDst := &c.cells[tailDst.tail]
				cellDst.seqIDs.Remove(dst)
				tailDst.tail = noPos
				if cellDst.empty() {
					cellDst.pos = noPos
					cellDst.src = noPos
					c.used--
				}
			}
			if tailSrc.tail >= 0 {
				cellSrc := &c.cells[tailSrc.tail]
				cellSrc.seqIDs.Add(dst)
				tailDst.tail = tailSrc.tail
			}
		}
		return
	}

	c.head = 0
	for i := range c.cells {
		cell := &c.cells[i]
		if cell.hasSeq(src) && cell.pos >= p0 && cell.pos < p1 {
			cell.seqIDs.Add(dst)
		}
	}
}

// SeqKeep drops every sequence id other than seq from every cell, emptying
// any cell that no longer references seq.
func (c *Cache) SeqKeep(seq int32) {
	newHead := c.size

	for i := range c.cells {
		cell := &c.cells[i]
		if c.recurrent && int32(i) != seq {
			cell.tail = noPos
		}

		if !cell.hasSeq(seq) {
			if cell.pos >= 0 {
				c.used--
			}
			cell.pos = noPos
			cell.src = noPos
			cell.seqIDs.Clear()
			if newHead == c.size {
				newHead = uint32(i)
			}
		} else {
			cell.seqIDs.Clear()
			cell.seqIDs.Add(seq)
		}
	}

	if newHead != c.size && newHead < c.head {
		c.head = newHead
	}
}

// SeqAdd adds delta to the position of every cell of seq within [p0, p1).
// In attention mode the shift is lazy: it also accumulates into each
// touched cell's delta and sets HasShift, for the host to fold into RoPE
// frequencies at graph-build time. In recurrent mode only the tail cell's
// position is shifted, since that is the sequence's entire state.
func (c *Cache) SeqAdd(seq int32, p0, p1, delta int32) {
	if delta == 0 {
		return
	}
	newHead := c.size
	p0, p1 = normalizeRange(p0, p1)
	if p0 == p1 {
		return
	}

	if c.recurrent {
		if seq >= 0 && seq < int32(c.size) {
			tailID := c.cells[seq].tail
			if tailID >= 0 {
				cell := &c.cells[tailID]
				if cell.hasSeq(seq) && p0 <= cell.pos && cell.pos < p1 {
					cell.pos += delta
				}
			}
		}
		return
	}

	for i := range c.cells {
		cell := &c.cells[i]
		if !cell.hasSeq(seq) || cell.pos < p0 || cell.pos >= p1 {
			continue
		}
		c.hasShift = true
		cell.pos += delta
		cell.delta += delta

		if cell.pos < 0 {
			if !cell.empty() {
				c.used--
			}
			cell.pos = noPos
			cell.seqIDs.Clear()
			if newHead == c.size {
				newHead = uint32(i)
			}
		}
	}

	if newHead != c.size {
		c.head = newHead
	} else {
		c.head = 0
	}
}

// SeqDiv integer-divides the position of every cell of seq within [p0, p1)
// by d. Mirrors SeqAdd's lazy-shift bookkeeping in attention mode; in
// recurrent mode only the tail cell is affected.
func (c *Cache) SeqDiv(seq int32, p0, p1, d int32) {
	if d == 1 {
		return
	}
	p0, p1 = normalizeRange(p0, p1)
	if p0 == p1 {
		return
	}

	if c.recurrent {
		if seq >= 0 && seq < int32(c.size) {
			tailID := c.cells[seq].tail
			if tailID >= 0 {
				cell := &c.cells[tailID]
				if cell.hasSeq(seq) && p0 <= cell.pos && cell.pos < p1 {
					cell.pos /= d
				}
			}
		}
		return
	}

	for i := range c.cells {
		cell := &c.cells[i]
		if !cell.hasSeq(seq) || cell.pos < p0 || cell.pos >= p1 {
			continue
		}
		c.hasShift = true
		pOld := cell.pos
		cell.pos /= d
		cell.delta += cell.pos - pOld
	}
}

// SeqPosMax returns the maximum pos across all cells whose seq_id contains
// seq, or 0 if none.
func (c *Cache) SeqPosMax(seq int32) int32 {
	var result int32
	for i := range c.cells {
		if c.cells[i].hasSeq(seq) && c.cells[i].pos > result {
			result = c.cells[i].pos
		}
	}
	return result
}

// Defrag raises the rebuild flag in attention mode. The rebuild itself is
// performed by the host the next time it builds the compute graph; this
// only raises the flag.
func (c *Cache) Defrag() {
	if !c.recurrent {
		c.doDefrag = true
	}
}
