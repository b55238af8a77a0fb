package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a cache and report its allocation",
	}
	capacity, layers, recurrent := demoFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cache, err := newDemoCache(*capacity, *layers, *recurrent)
		if err != nil {
			return err
		}

		fmt.Printf("id:           %s\n", cache.ID())
		fmt.Printf("capacity:     %d\n", cache.Size())
		fmt.Printf("recurrent:    %t\n", cache.Recurrent())
		fmt.Printf("can_shift:    %t\n", cache.CanShift())
		fmt.Printf("total_size:   %d bytes\n", cache.TotalSize())
		return nil
	}
	return cmd
}
