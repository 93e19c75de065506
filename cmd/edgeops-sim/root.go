package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edgeops-sim",
	Short: "Edge operations simulation toolkit",
	Long:  "edgeops-sim runs a digital-twin simulation of a pipeline facility: a world engine, an edge agent fleet, and an event bus with pluggable sinks.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
}
