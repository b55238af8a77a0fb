package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive find_slot with synthetic batches and report timing",
	}
	capacity, layers, recurrent := demoFlags(cmd)
	steps := cmd.Flags().Int("steps", 16, "number of find_slot calls to perform")
	nSeqs := cmd.Flags().Int("seqs", 4, "sequences per batch")
	nSeqTokens := cmd.Flags().Int("seq-tokens", 1, "tokens per sequence per batch")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cache, err := newDemoCache(*capacity, *layers, *recurrent)
		if err != nil {
			return err
		}

		pos := make([]int32, *nSeqs)
		var failures int
		began := time.Now()
		for i := 0; i < *steps; i++ {
			seqIDs := make([]int32, *nSeqs)
			start := make([]int32, *nSeqs)
			for s := 0; s < *nSeqs; s++ {
				seqIDs[s] = int32(s)
				start[s] = pos[s]
				pos[s] += int32(*nSeqTokens)
			}

			batch := randomMicroBatch(seqIDs, start, *nSeqTokens)
			if _, err := cache.FindSlot(batch); err != nil {
				failures++
				continue
			}
		}
		elapsed := time.Since(began)

		fmt.Printf("steps:       %d\n", *steps)
		fmt.Printf("failures:    %d\n", failures)
		fmt.Printf("elapsed:     %s\n", elapsed)
		fmt.Printf("used cells:  %d / %d\n", cache.Used(), cache.Size())
		fmt.Printf("n_tokens():  %d\n", cache.NTokens())
		return nil
	}
	return cmd
}
