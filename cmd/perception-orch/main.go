package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "perception-orch",
		Short: "Perception Orchestrator - Multi-model brand analysis engine",
		Long: `Perception Orchestrator runs brand-perception analysis batches against
language models. It fans prompts out across four analysis pipelines
(spontaneous mention, sentiment, comparison, accuracy), aggregates the
raw responses into summary metrics and freezes them into reports.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
