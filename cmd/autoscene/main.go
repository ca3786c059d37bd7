package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autoscene",
		Short: "Traffic scenario knowledge base",
		Long: `autoscene records traffic scenarios as ordered scenes of ontology
individuals, saves them as versioned .kbs containers and renders them
as scene graphs.

Logical identities tie the per-scene individuals of one participant
together so it keeps a stable color and label across the frames.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newDemoCmd(),
		newInspectCmd(),
		newViewCmd(),
		newExportABoxCmd(),
		newImportABoxCmd(),
		newTrajectoryCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)
	return rootCmd
}
