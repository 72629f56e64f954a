// Command foldfilter wraps overlong UTF-8 lines at preferred delimiters
// before a line-oriented child process sees them and glues the child's
// output back together afterwards.
//
// Usage:
//
//	foldfilter [-w WIDTH] COMMAND [ARGS...]
//
// The exit code mirrors the child's.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pellucid/docalign"
)

var (
	width    int
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "foldfilter [-w WIDTH] COMMAND [ARGS...]",
	Short: "Wrap overlong lines around a line-oriented child process",
	Long: `foldfilter chops input lines longer than the given width at preferred
delimiters (':', ',', ' ', '-', '.'), feeds the segments to the given
command as separate lines, and reassembles the command's output with the
delimiters restored. The child must map input lines to output lines
one-to-one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVarP(&width, "width", "w", docalign.DefaultFoldWidth, "maximum line length in bytes fed to the child")
	// Everything after the command name belongs to the child, flags
	// included.
	flags.SetInterspersed(false)
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	child := docalign.NewSubprocess(args[0], args[1:]...)
	code, err := docalign.RunFoldFilter(os.Stdin, os.Stdout, child, width)
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
