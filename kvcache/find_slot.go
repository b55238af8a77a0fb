package kvcache

import (
	"fmt"

	"github.com/inferd/kvcache/ml"
)

// SlotInfo describes where FindSlot placed a batch: a half-open cell range
// [Begin, End) in attention mode, or the implicit range [head, head+n) in
// recurrent mode (reported here via the same Begin/End fields for a
// uniform return type).
type SlotInfo struct {
	Begin, End uint32
}

// Len reports the number of cells this slot spans.
func (s SlotInfo) Len() uint32 {
	return s.End - s.Begin
}

// FindSlot reserves cells for ubatch and returns the range it was placed
// in. In attention mode it scans circularly from head for the first run of
// contiguous empty cells; in recurrent mode it runs the deshare / locate /
// assign / gather / finalize procedure so that the batch's active sequences
// occupy a contiguous span.
func (c *Cache) FindSlot(ubatch *ml.MicroBatch) (SlotInfo, error) {
	if c.recurrent {
		return c.findSlotRecurrent(ubatch)
	}
	return c.findSlotAttention(ubatch)
}

func (c *Cache) findSlotAttention(ubatch *ml.MicroBatch) (SlotInfo, error) {
	nTokens := uint32(ubatch.NTokens)

	if nTokens > c.size {
		return SlotInfo{}, fmt.Errorf("%w: %d tokens > capacity %d", ErrSlotTooLarge, nTokens, c.size)
	}

	var nTested uint32
	head := c.head

	for {
		if head+nTokens > c.size {
			nTested += c.size - head
			head = 0
			continue
		}

		found := true
		for i := uint32(0); i < nTokens; i++ {
			if c.cells[head+i].pos >= 0 {
				found = false
				head += i + 1
				nTested += i + 1
				break
			}
		}
		if found {
			break
		}
		if nTested >= c.size {
			return SlotInfo{}, fmt.Errorf("%w: no run of %d contiguous cells", ErrNoSlot, nTokens)
		}
	}

	nSeqTokens := uint32(ubatch.NSeqTokens)
	for s := 0; s < ubatch.NSeqs; s++ {
		for i := uint32(0); i < nSeqTokens; i++ {
			k := uint32(s)*nSeqTokens + i
			cell := &c.cells[head+k]
			cell.pos = ubatch.Pos[k]
			for _, seq := range ubatch.SeqID[s] {
				cell.seqIDs.Add(seq)
			}
		}
	}

	c.head = head
	c.used += nTokens

	return SlotInfo{Begin: head, End: head + nTokens}, nil
}

func (c *Cache) findSlotRecurrent(ubatch *ml.MicroBatch) (SlotInfo, error) {
	if !ubatch.EqualSeqs {
		return SlotInfo{}, fmt.Errorf("kvcache: recurrent find_slot requires equal_seqs batches")
	}

	nSeqs := ubatch.NSeqs
	nSeqTokens := uint32(ubatch.NSeqTokens)

	// Step 1: deshare. Every seq_id referenced must fit in the table; any
	// sequence with more than one alias drops the stale aliases that still
	// point at a tail cell.
	for s := 0; s < nSeqs; s++ {
		for j, seqID := range ubatch.SeqID[s] {
			if seqID < 0 || uint32(seqID) >= c.size {
				return SlotInfo{}, fmt.Errorf("%w: seq_id=%d >= size=%d", ErrSeqIDOutOfRange, seqID, c.size)
			}
			if j == 0 {
				continue
			}
			seq := &c.cells[seqID]
			if seq.tail < 0 {
				continue
			}
			cell := &c.cells[seq.tail]
			cell.seqIDs.Remove(seqID)
			seq.tail = noPos
			if cell.empty() {
				cell.pos = noPos
				cell.src = noPos
				c.used--
			}
		}
	}

	if DebugVerifyTails {
		if err := c.verifyTails(); err != nil {
			c.logger.Error("tail consistency check failed", "err", err)
		}
	}

	// Step 2: locate next empty, scanning circularly from head.
	nextEmpty := c.head
	for i := uint32(0); i < c.size; i++ {
		if nextEmpty >= c.size {
			nextEmpty -= c.size
		}
		if c.cells[nextEmpty].empty() {
			break
		}
		nextEmpty++
	}

	min := int32(c.size) - 1
	max := int32(0)

	// Step 3: assign tails.
	for s := 0; s < nSeqs; s++ {
		seqID := ubatch.SeqID[s][0]
		seqMeta := &c.cells[seqID]
		hasCell := false
		if seqMeta.tail >= 0 {
			cell := &c.cells[seqMeta.tail]
			if cell.seqIDs.Size() == 1 {
				hasCell = true
			}
		}
		if !hasCell {
			emptyCell := &c.cells[nextEmpty]
			if seqMeta.tail >= 0 {
				origCell := &c.cells[seqMeta.tail]
				emptyCell.pos = origCell.pos
				emptyCell.src = origCell.src
				origCell.seqIDs.Remove(seqID)
				emptyCell.seqIDs.Add(seqID)
			}
			seqMeta.tail = int32(nextEmpty)

			if s+1 < nSeqs {
				nextEmpty++
				for i := uint32(0); i < c.size; i++ {
					if nextEmpty >= c.size {
						nextEmpty -= c.size
					}
					if c.cells[nextEmpty].empty() {
						break
					}
					nextEmpty++
				}
			}
		}
		if min > seqMeta.tail {
			min = seqMeta.tail
		}
		if max < seqMeta.tail {
			max = seqMeta.tail
		}
	}

	// Step 4: gather and re-order so the active sequences occupy a
	// contiguous span starting at min.
	for s := 0; s < nSeqs; s++ {
		dstID := int32(s) + min
		srcID := c.cells[ubatch.SeqID[s][0]].tail
		if dstID == srcID {
			continue
		}
		dstCell := &c.cells[dstID]
		srcCell := &c.cells[srcID]

		dstCell.pos, srcCell.pos = srcCell.pos, dstCell.pos
		dstCell.src, srcCell.src = srcCell.src, dstCell.src
		dstCell.seqIDs, srcCell.seqIDs = srcCell.seqIDs, dstCell.seqIDs

		for _, seq := range srcCell.seqIDs.Values() {
			c.cells[seq].tail = srcID
		}
		for _, seq := range dstCell.seqIDs.Values() {
			c.cells[seq].tail = dstID
		}
	}

	// Step 5: finalize positions.
	for s := 0; s < nSeqs; s++ {
		lastPos := ubatch.Pos[nSeqTokens*uint32(s)+nSeqTokens-1]
		cellID := int32(s) + min
		cell := &c.cells[cellID]

		if cell.pos >= 0 && lastPos != cell.pos+int32(nSeqTokens) {
			c.logger.Warn("non-consecutive token position",
				"pos", lastPos, "after", cell.pos, "seq", ubatch.SeqID[s][0], "n_seq_tokens", nSeqTokens)
		}
		cell.pos = lastPos
		cell.seqIDs.Clear()
		for _, seqID := range ubatch.SeqID[s] {
			cell.seqIDs.Add(seqID)
			c.cells[seqID].tail = cellID
		}
	}

	// Step 6: finalize bookkeeping.
	c.head = uint32(min)
	c.n = uint32(max-min) + 1

	var used uint32
	for i := range c.cells {
		if !c.cells[i].empty() {
			used++
		}
	}
	c.used = used

	if c.n < uint32(nSeqs) {
		return SlotInfo{}, fmt.Errorf("%w: span %d < %d sequences", ErrNoSlot, c.n, nSeqs)
	}
	return SlotInfo{Begin: c.head, End: c.head + c.n}, nil
}
