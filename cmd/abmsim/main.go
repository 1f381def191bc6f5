// Command abmsim runs a round-based multiprocessing simulation of pooling
// agents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "abmsim",
		Short: "Synchronous round-based agent simulation",
		Long: `abmsim runs a population of agents that repeatedly pool value with a
fixed neighborhood. Rounds are synchronous: every agent computes its
update in parallel from the same committed snapshot, and nothing
commits until the whole round has finished.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default abmsim.yaml when present)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("abmsim version %s\n", version)
		},
	}
}
