package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inferd/kvcache/ml"
	"github.com/inferd/kvcache/ml/cpu"
)

type fakeModel struct {
	numLayers      int
	recurrent      bool
	flashAttention bool
	nEmbdK, nEmbdV int
}

func (m *fakeModel) NumLayers() int           { return m.numLayers }
func (m *fakeModel) Architecture() string     { return "generic" }
func (m *fakeModel) Recurrent() bool          { return m.recurrent }
func (m *fakeModel) FlashAttention() bool     { return m.flashAttention }
func (m *fakeModel) NEmbdKGQA(int) int        { return m.nEmbdK }
func (m *fakeModel) NEmbdVGQA(int) int        { return m.nEmbdV }
func (m *fakeModel) DeviceLayer(int) ml.DeviceID { return ml.Host }

func newTestCache(t *testing.T, size uint32, recurrent bool) *Cache {
	t.Helper()
	backend := cpu.New()
	model := &fakeModel{numLayers: 1, recurrent: recurrent, nEmbdK: 4, nEmbdV: 4}
	c := New()
	require.NoError(t, c.Init(backend, model, ml.DTypeF32, ml.DTypeF32, size, false))
	return c
}

func ubatchSingleSeq(seq int32, positions []int32) *ml.MicroBatch {
	seqIDs := make([][]int32, len(positions))
	for i := range seqIDs {
		seqIDs[i] = []int32{seq}
	}
	return &ml.MicroBatch{
		NTokens:    len(positions),
		NSeqs:      len(positions),
		NSeqTokens: 1,
		EqualSeqs:  true,
		Pos:        positions,
		SeqID:      seqIDs,
	}
}

func TestInitBasics(t *testing.T) {
	c := newTestCache(t, 8, false)
	require.Equal(t, uint32(8), c.Size())
	require.Equal(t, uint32(0), c.Used())
	require.True(t, c.CanShift())
	require.False(t, c.Recurrent())
	require.Greater(t, c.TotalSize(), uint64(0))
}

func TestClearRoundTrip(t *testing.T) {
	c := newTestCache(t, 8, false)
	_, err := c.FindSlot(ubatchSingleSeq(0, []int32{0, 1, 2}))
	require.NoError(t, err)

	c.Clear()
	require.Equal(t, int32(0), c.NTokens())
	require.Equal(t, uint32(0), c.Used())
	require.Equal(t, int32(-1), c.MaxPos())
}
