// Command docalign scores cross-lingual document pairs.
//
// Usage:
//
//	docalign TRANSLATED-TOKENS ENGLISH-TOKENS [flags]
//
// Both inputs hold one document per line, base64-encoded. Output is one
// line per reported pair: score, translated document id, english document
// id, tab-separated.
package main

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pellucid/docalign"
)

var (
	dfSampleRate int
	ngramSize    int
	jobs         int
	threshold    float32
	minCount     int
	maxCount     int
	bestOnly     bool
	allPairs     bool
	words        bool
	normalize    bool
	quantize     bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "docalign TRANSLATED-TOKENS ENGLISH-TOKENS",
	Short: "Compute cross-lingual document alignment scores",
	Long: `docalign reads two files of base64-encoded tokenized documents, one
machine-translated into the language of the other, and reports document
pairs whose TF-IDF cosine similarity meets the threshold. By default a
conflict-free best matching is printed; --all prints every pair above the
threshold instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runAlign,
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVar(&dfSampleRate, "df-sample-rate", 1, "count document frequency on every n-th document")
	flags.IntVarP(&ngramSize, "ngram_size", "n", docalign.DefaultNGramSize, "ngram size")
	flags.IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "number of worker threads")
	flags.Float32Var(&threshold, "threshold", docalign.DefaultThreshold, "minimum score to report")
	flags.IntVar(&minCount, "min_count", docalign.DefaultMinCount, "minimal number of documents an ngram must appear in to be kept in DF")
	flags.IntVar(&maxCount, "max_count", docalign.DefaultMaxCount, "maximum number of documents an ngram may appear in to be kept in DF")
	flags.BoolVar(&bestOnly, "best", true, "only output a conflict-free best matching")
	flags.BoolVar(&allPairs, "all", false, "print every pair above the threshold")
	flags.BoolVar(&words, "words", false, "segment decoded text with UAX#29 word boundaries instead of splitting on whitespace")
	flags.BoolVar(&normalize, "normalize", false, "apply NFKC normalization to decoded text before tokenization")
	flags.BoolVar(&quantize, "quantize", false, "store loaded document vectors as half floats to halve memory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print diagnostics to stderr")
}

// buildConfig translates the flag values into an aligner configuration.
func buildConfig() docalign.AlignerConfig {
	return docalign.AlignerConfig{
		NGramSize:    ngramSize,
		Jobs:         jobs,
		DFSampleRate: dfSampleRate,
		MinCount:     minCount,
		MaxCount:     maxCount,
		Threshold:    threshold,
		BestOnly:     bestOnly && !allPairs,
		Words:        words,
		Normalize:    normalize,
		Quantize:     quantize,
		Verbose:      verbose,
		Output:       os.Stdout,
		Diagnostics:  os.Stderr,
	}
}

func runAlign(cmd *cobra.Command, args []string) error {
	// Past argument parsing; an error from here on is an internal one and
	// repeating the usage text would only bury it.
	cmd.SilenceUsage = true

	return docalign.NewAligner(buildConfig()).Align(args[0], args[1])
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
