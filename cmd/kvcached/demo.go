package main

import (
	"github.com/spf13/cobra"

	"github.com/inferd/kvcache/envconfig"
	"github.com/inferd/kvcache/kvcache"
	"github.com/inferd/kvcache/ml"
	"github.com/inferd/kvcache/ml/cpu"
)

// demoModel is a minimal ml.ModelConfig used to drive the CLI against the
// CPU reference backend; a real host engine supplies its own.
type demoModel struct {
	numLayers int
	recurrent bool
}

func (m *demoModel) NumLayers() int           { return m.numLayers }
func (m *demoModel) Architecture() string     { return "generic" }
func (m *demoModel) Recurrent() bool          { return m.recurrent }
func (m *demoModel) FlashAttention() bool     { return false }
func (m *demoModel) NEmbdKGQA(int) int        { return 128 }
func (m *demoModel) NEmbdVGQA(int) int        { return 128 }
func (m *demoModel) DeviceLayer(int) ml.DeviceID {
	return ml.Host
}

func demoFlags(cmd *cobra.Command) (capacity *int32, layers *int, recurrent *bool) {
	capacity = cmd.Flags().Int32("capacity", envconfig.DefaultCapacity(), "cache capacity in cells")
	layers = cmd.Flags().Int("layers", 4, "number of layers")
	recurrent = cmd.Flags().Bool("recurrent", false, "use recurrent (one cell per sequence state) storage")
	return
}

func newDemoCache(capacity int32, numLayers int, recurrent bool) (*kvcache.Cache, error) {
	backend := cpu.New()
	model := &demoModel{numLayers: numLayers, recurrent: recurrent}
	c := kvcache.New()
	if err := c.Init(backend, model, ml.DTypeF16, ml.DTypeF16, uint32(capacity), envconfig.Offload()); err != nil {
		return nil, err
	}
	return c, nil
}

// randomMicroBatch builds a synthetic batch for the bench command: nSeqs
// sequences of nSeqTokens tokens each, continuing from the given starting
// positions.
func randomMicroBatch(seqIDs []int32, start []int32, nSeqTokens int) *ml.MicroBatch {
	n := len(seqIDs) * nSeqTokens
	pos := make([]int32, 0, n)
	ids := make([][]int32, len(seqIDs))
	for i, seq := range seqIDs {
		ids[i] = []int32{seq}
		for k := 0; k < nSeqTokens; k++ {
			pos = append(pos, start[i]+int32(k))
		}
	}
	return &ml.MicroBatch{
		NTokens:    n,
		NSeqs:      len(seqIDs),
		NSeqTokens: nSeqTokens,
		EqualSeqs:  true,
		Pos:        pos,
		SeqID:      ids,
	}
}
