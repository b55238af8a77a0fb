package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/inferd/kvcache/kvcache"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Initialize a cache, fill it with a demo batch, and render the observer view",
	}
	capacity, layers, recurrent := demoFlags(cmd)
	nSeqMax := cmd.Flags().Int("seq-max", 4, "max sequence ids tracked per cell")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cache, err := newDemoCache(*capacity, *layers, *recurrent)
		if err != nil {
			return err
		}

		seqIDs := make([]int32, 3)
		start := make([]int32, 3)
		for i := range seqIDs {
			seqIDs[i] = int32(i)
		}
		if _, err := cache.FindSlot(randomMicroBatch(seqIDs, start, 1)); err != nil {
			return err
		}

		v := kvcache.NewView(*nSeqMax)
		v.Update(cache)

		renderView(v, int(cache.CellMax()))

		mean, variance := v.FragmentationSummary(cache)
		fmt.Printf("\nused_cells=%d token_count=%d max_contiguous=%d@%d frag_mean=%.2f frag_var=%.2f\n",
			v.UsedCells, v.TokenCount, v.MaxContiguous, v.MaxContiguousIdx, mean, variance)
		return nil
	}
	return cmd
}

func renderView(v *kvcache.View, cellMax int) {
	if cellMax > v.NCells {
		cellMax = v.NCells
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"cell", "pos+delta", "seq_ids"})

	for i := 0; i < cellMax; i++ {
		seqs := make([]string, 0, v.NSeqMax)
		for j := 0; j < v.NSeqMax; j++ {
			id := v.CellSeqIDs[i*v.NSeqMax+j]
			if id < 0 {
				continue
			}
			seqs = append(seqs, strconv.Itoa(int(id)))
		}
		table.Append([]string{strconv.Itoa(i), strconv.Itoa(int(v.CellPos[i])), strings.Join(seqs, ",")})
	}

	table.Render()
}
