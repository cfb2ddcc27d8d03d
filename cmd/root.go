package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when wranglerd is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "wranglerd",
	Short: "Supervise external processes with bounded log capture",
	Long: `wranglerd registers process definitions, launches them as child
processes, captures their output in bounded ring buffers, and
terminates them with graceful-then-forceful, whole-process-group
semantics.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build
// time from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI, exiting with a semantic code on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "wranglerd version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
