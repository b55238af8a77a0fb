package kvcache

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// View is a read-only diagnostic snapshot of a Cache, the analogue of
// llama_kv_cache_view. Update reallocates its slices only when the cache's
// capacity grew since the last call; changing NSeqMax after the first Update
// does not resize CellSeqIDs.
type View struct {
	NSeqMax int

	NCells            int
	TokenCount        int32
	UsedCells         int32
	MaxContiguous     int32
	MaxContiguousIdx  int32

	// CellPos holds, per cell, pos+delta (the shift-folded position).
	CellPos []int32

	// CellSeqIDs holds, per cell, up to NSeqMax sequence ids, padded with
	// -1. Cell i's ids occupy CellSeqIDs[i*NSeqMax : (i+1)*NSeqMax].
	CellSeqIDs []int32
}

// NewView creates a view sized for the given maximum number of sequence ids
// tracked per cell.
func NewView(nSeqMax int) *View {
	return &View{NSeqMax: nSeqMax, MaxContiguousIdx: noPos}
}

// Update recomputes the snapshot from c's current state, reallocating the
// backing slices only if capacity grew. It logs an error if the computed
// non-empty cell count disagrees with the cache's own Used counter, which
// would indicate an invariant violation.
func (v *View) Update(c *Cache) {
	n := int(c.size)
	if n > v.NCells || v.CellPos == nil {
		v.NCells = n
		v.CellPos = make([]int32, n)
		v.CellSeqIDs = make([]int32, n*v.NSeqMax)
	}

	var usedCells, tokenCount int32
	currContigIdx := int32(-1)
	var maxContig uint32
	maxContigIdx := int32(-1)

	for i := 0; i < n; i++ {
		cell := &c.cells[i]
		size := int32(cell.seqIDs.Size())
		tokenCount += size
		v.CellPos[i] = cell.pos + cell.delta

		if size > 0 {
			if currContigIdx >= 0 && uint32(int32(i)-currContigIdx) > maxContig {
				maxContig = uint32(int32(i) - currContigIdx)
				maxContigIdx = currContigIdx
			}
			currContigIdx = -1
		} else if currContigIdx < 0 {
			currContigIdx = int32(i)
		}

		base := i * v.NSeqMax
		seqIdx := 0
		for _, seq := range cell.seqIDs.Values() {
			if seqIdx >= v.NSeqMax {
				break
			}
			v.CellSeqIDs[base+seqIdx] = seq
			seqIdx++
		}
		if seqIdx != 0 {
			usedCells++
		}
		for ; seqIdx < v.NSeqMax; seqIdx++ {
			v.CellSeqIDs[base+seqIdx] = noPos
		}
	}

	if currContigIdx >= 0 && uint32(n)-uint32(currContigIdx) > maxContig {
		maxContigIdx = currContigIdx
		maxContig = uint32(n) - uint32(currContigIdx)
	}

	v.MaxContiguous = int32(maxContig)
	v.MaxContiguousIdx = maxContigIdx
	v.TokenCount = tokenCount
	v.UsedCells = usedCells

	if uint32(usedCells) != c.used {
		c.logger.Error("used cells mismatch", "reported", c.used, "computed", usedCells)
	}
}

// FragmentationSummary reports the mean and variance of the lengths of
// every empty-cell run in c's cell table, read directly from the cache
// rather than from the snapshot, supplementing MaxContiguous with a fuller
// picture of how fragmented the cell table has become.
func (v *View) FragmentationSummary(c *Cache) (mean, variance float64) {
	var runs []float64
	run := 0
	for i := 0; i < int(c.size); i++ {
		if c.cells[i].empty() {
			run++
			continue
		}
		if run > 0 {
			runs = append(runs, float64(run))
			run = 0
		}
	}
	if run > 0 {
		runs = append(runs, float64(run))
	}
	if len(runs) == 0 {
		return 0, 0
	}
	return stat.MeanVariance(runs, nil)
}

// LogValue lets slog render a View compactly, matching the teacher's use of
// slog.LogValuer for structured diagnostics.
func (v *View) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("n_cells", v.NCells),
		slog.Int64("token_count", int64(v.TokenCount)),
		slog.Int64("used_cells", int64(v.UsedCells)),
		slog.Int64("max_contiguous", int64(v.MaxContiguous)),
		slog.Int64("max_contiguous_idx", int64(v.MaxContiguousIdx)),
	)
}
