// Command kvcached is a small diagnostic CLI that drives a key-value
// attention cache the way a host inference engine would: initialize it,
// reserve slots for synthetic batches, and render the observer view.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferd/kvcache/envconfig"
)

func main() {
	slog.SetLogLoggerLevel(envconfig.LogLevel())

	if err := newCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "kvcached",
		Short:         "Drive and inspect a key-value attention cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newInitCmd(), newBenchCmd(), newViewCmd())
	return rootCmd
}
