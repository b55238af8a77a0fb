package kvcache

import "fmt"

// NTokens returns the sum of seq_id set sizes across all cells. This
// differs from Used (the count of non-empty cells) because a cell shared
// by several sequences contributes once to Used but once per sequence here.
func (c *Cache) NTokens() int32 {
	var result int32
	for i := range c.cells {
		result += int32(c.cells[i].seqIDs.Size())
	}
	return result
}

// TotalSize returns the sum of every device-memory domain's backing buffer
// byte size.
func (c *Cache) TotalSize() uint64 {
	var total uint64
	for _, b := range c.bufs {
		total += b.buf.Size()
	}
	return total
}

// MaxPos returns the maximum pos across all cells regardless of sequence,
// or -1 if the cache is empty.
func (c *Cache) MaxPos() int32 {
	maxPos := noPos
	for i := range c.cells {
		if c.cells[i].pos > maxPos {
			maxPos = c.cells[i].pos
		}
	}
	return maxPos
}

// CellMax returns the index one past the last non-empty cell, scanning
// from the end. The diagnostics CLI uses this to avoid rendering trailing
// empty cells.
func (c *Cache) CellMax() uint32 {
	for i := c.size; i > 0; i-- {
		if cell := &c.cells[i-1]; cell.pos >= 0 && !cell.empty() {
			return i
		}
	}
	return 0
}

// verifyTails rebuilds the expected tail table from cell membership and
// reports the first inconsistency found, if any. It implements the
// debug-only check from the original's #ifndef NDEBUG block; callers gate
// it behind DebugVerifyTails.
func (c *Cache) verifyTails() error {
	verif := make([]int32, c.size)
	for i := range verif {
		verif[i] = noPos
	}
	for i := range c.cells {
		for _, seq := range c.cells[i].seqIDs.Values() {
			if int(seq) >= len(verif) {
				continue
			}
			if verif[seq] != noPos {
				return errTailConsistency("duplicate tail", seq, int32(i), verif[seq])
			}
			verif[seq] = int32(i)
		}
	}
	for i := range c.cells {
		if verif[i] != c.cells[i].tail {
			return errTailConsistency("wrong tail", int32(i), c.cells[i].tail, verif[i])
		}
	}
	return nil
}

func errTailConsistency(kind string, seqOrCell, got, want int32) error {
	return &tailConsistencyError{kind: kind, seqOrCell: seqOrCell, got: got, want: want}
}

type tailConsistencyError struct {
	kind                 string
	seqOrCell, got, want int32
}

func (e *tailConsistencyError) Error() string {
	return fmt.Sprintf("kvcache: %s: seq/cell %d has tail %d, expected %d", e.kind, e.seqOrCell, e.got, e.want)
}
