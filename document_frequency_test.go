package docalign

import "testing"

// TestFrequencyTableAddDocument checks per-document counting: a fingerprint
// counts once per document no matter how often it occurs inside.
func TestFrequencyTableAddDocument(t *testing.T) {
	doc := mustReadDocument(t, "a a a b", ReaderOptions{NGramSize: 1})

	df := make(FrequencyTable)
	df.AddDocument(&doc)

	for ngram, count := range df {
		if count != 1 {
			t.Errorf("df[%#x] = %d, want 1", ngram, count)
		}
	}
	if len(df) != 2 {
		t.Errorf("len(df) = %d, want 2", len(df))
	}
}

// TestFrequencyTableTwoFiles reproduces the two-file reference case: one
// document "a b c" and one "b c d" with unigrams yield counts
// {a:1, b:2, c:2, d:1}.
func TestFrequencyTableTwoFiles(t *testing.T) {
	opts := ReaderOptions{NGramSize: 1}
	first := mustReadDocument(t, "a b c", opts)
	second := mustReadDocument(t, "b c d", opts)

	// Each worker counts into a local table; the merge scales by the
	// sample rate (1 here).
	local1 := make(FrequencyTable)
	local1.AddDocument(&first)
	local2 := make(FrequencyTable)
	local2.AddDocument(&second)

	df := make(FrequencyTable)
	df.MergeScaled(local1, 1)
	df.MergeScaled(local2, 1)

	wantCounts := map[string]int{"a": 1, "b": 2, "c": 2, "d": 1}
	for token, want := range wantCounts {
		doc := mustReadDocument(t, token, opts)
		for ngram := range doc.Vocab {
			if got := df[ngram]; got != want {
				t.Errorf("df[%q] = %d, want %d", token, got, want)
			}
		}
	}
	if len(df) != 4 {
		t.Errorf("len(df) = %d, want 4", len(df))
	}
}

// TestFrequencyTableMergeScaled checks the sample-rate multiplication.
func TestFrequencyTableMergeScaled(t *testing.T) {
	local := FrequencyTable{1: 3, 2: 1}

	df := make(FrequencyTable)
	df.MergeScaled(local, 4)

	if got := df[1]; got != 12 {
		t.Errorf("df[1] = %d, want 12", got)
	}
	if got := df[2]; got != 4 {
		t.Errorf("df[2] = %d, want 4", got)
	}
}

// TestFrequencyTablePrune checks the inclusive pruning bounds.
func TestFrequencyTablePrune(t *testing.T) {
	df := FrequencyTable{
		1: 1,  // below floor
		2: 2,  // on the floor, kept
		3: 10, // inside, kept
		4: 50, // on the ceiling, kept
		5: 51, // above ceiling
	}

	removed := df.Prune(2, 50)
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	for ngram, count := range df {
		if count < 2 || count > 50 {
			t.Errorf("surviving df[%d] = %d outside [2, 50]", ngram, count)
		}
	}
	if len(df) != 3 {
		t.Errorf("len(df) = %d, want 3", len(df))
	}
}
