// Command b64filter pipes base64-encoded documents through a line-oriented
// child process, one decoded document at a time, and re-encodes the child's
// output with the original document boundaries intact.
//
// Usage:
//
//	b64filter COMMAND [ARGS...]
//
// The exit code mirrors the child's.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pellucid/docalign"
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "b64filter COMMAND [ARGS...]",
	Short: "Pipe base64-encoded documents through a line-oriented child process",
	Long: `b64filter decodes each input line (one base64-encoded document), feeds
the raw lines to the given command, and re-encodes the command's output
grouped back into the original documents. The child must map input lines to
output lines one-to-one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	// Everything after the command name belongs to the child, flags
	// included.
	rootCmd.Flags().SetInterspersed(false)
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	child := docalign.NewSubprocess(args[0], args[1:]...)
	code, err := docalign.RunB64Filter(os.Stdin, os.Stdout, child)
	if err != nil {
		return err
	}
	exitCode = code
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}
