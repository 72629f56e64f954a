package main

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pellucid/docalign"
)

// TestFlagDefaults checks the documented defaults reach the aligner config.
func TestFlagDefaults(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags(nil))

	cfg := buildConfig()
	require.Equal(t, docalign.DefaultNGramSize, cfg.NGramSize)
	require.Equal(t, runtime.NumCPU(), cfg.Jobs)
	require.Equal(t, 1, cfg.DFSampleRate)
	require.Equal(t, docalign.DefaultMinCount, cfg.MinCount)
	require.Equal(t, docalign.DefaultMaxCount, cfg.MaxCount)
	require.InDelta(t, float32(docalign.DefaultThreshold), cfg.Threshold, 1e-9)
	require.True(t, cfg.BestOnly)
	require.False(t, cfg.Words)
	require.False(t, cfg.Normalize)
	require.False(t, cfg.Quantize)
	require.False(t, cfg.Verbose)
}

// TestAllOverridesBest checks --all switches the sink even though --best
// defaults to true.
func TestAllOverridesBest(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"--all"}))
	defer func() { allPairs = false }()

	cfg := buildConfig()
	require.False(t, cfg.BestOnly)
}

// TestFlagParsing checks a representative flag set lands in the config.
func TestFlagParsing(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{
		"--df-sample-rate", "8",
		"-n", "3",
		"-j", "2",
		"--threshold", "0.25",
		"--min_count", "5",
		"--max_count", "500",
		"-v",
	}))
	defer func() {
		dfSampleRate, ngramSize, jobs = 1, docalign.DefaultNGramSize, runtime.NumCPU()
		threshold = docalign.DefaultThreshold
		minCount, maxCount = docalign.DefaultMinCount, docalign.DefaultMaxCount
		verbose = false
	}()

	cfg := buildConfig()
	require.Equal(t, 8, cfg.DFSampleRate)
	require.Equal(t, 3, cfg.NGramSize)
	require.Equal(t, 2, cfg.Jobs)
	require.InDelta(t, 0.25, cfg.Threshold, 1e-9)
	require.Equal(t, 5, cfg.MinCount)
	require.Equal(t, 500, cfg.MaxCount)
	require.True(t, cfg.Verbose)
}
