// Command orchestrator runs the LLM orchestration core as a standalone
// HTTP service: intent classification, ranking, service mesh, dispatch,
// fan-out, and fusion behind a gin-based public API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per the public configuration surface.
const (
	exitOK            = 0
	exitConfigError   = 2
	exitAllShortCirc  = 3
	exitNoEligible    = 4
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitConfigError)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Multi-provider LLM orchestration core",
		Long:  "Classifies prompts, ranks providers, dispatches upstream calls through a service mesh, and fuses multi-provider responses into a single consensus answer.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	root.AddCommand(newCompleteCmd(&configPath))

	return root
}
