// This file implements the two result sinks of the aligner and the greedy
// best-pair matcher.
//
// The scoring workers report every pair meeting the threshold through the
// ScoreSink interface. In all-pairs mode the sink writes straight to the
// output under a mutex. In best-pair mode the sink collects pairs in memory;
// after the score phase the matcher sorts them by (score desc, left id desc,
// right id desc) and walks the list top-down, accepting a pair only when
// neither of its documents has been matched yet. The full sort order makes
// the output a pure function of the input, independent of how the scoring
// threads happened to interleave.
package docalign

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// ScoreSink receives every (score, left, right) pair that met the
// threshold. Implementations must be safe for concurrent use by the scoring
// workers.
type ScoreSink interface {
	Record(score float32, leftID, rightID uint32)
}

// WriteScore writes one result line: the score in fixed-point notation with
// five fractional digits, then the two document ids, tab-separated.
func WriteScore(w io.Writer, score float32, leftID, rightID uint32) {
	fmt.Fprintf(w, "%.5f\t%d\t%d\n", score, leftID, rightID)
}

// AllPairsSink writes every reported pair directly to an output stream.
type AllPairsSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAllPairsSink returns a sink writing to w.
func NewAllPairsSink(w io.Writer) *AllPairsSink {
	return &AllPairsSink{w: w}
}

// Record writes the pair under the output mutex.
func (s *AllPairsSink) Record(score float32, leftID, rightID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	WriteScore(s.w, score, leftID, rightID)
}

// ScoredPair is one candidate alignment.
type ScoredPair struct {
	Score   float32
	LeftID  uint32
	RightID uint32
}

// BestPairSink collects every reported pair for the post-scoring matcher.
type BestPairSink struct {
	mu    sync.Mutex
	pairs []ScoredPair
}

// NewBestPairSink returns an empty sink.
func NewBestPairSink() *BestPairSink {
	return &BestPairSink{}
}

// Record appends the pair under the sink mutex.
func (s *BestPairSink) Record(score float32, leftID, rightID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, ScoredPair{Score: score, LeftID: leftID, RightID: rightID})
}

// Matches computes the conflict-free one-to-one matching: pairs sorted by
// (score desc, left id desc, right id desc), accepted greedily while both
// documents are still free, until limit pairs have been accepted. The
// caller passes min(|left corpus|, |right corpus|) as the limit since no
// larger matching can exist.
//
// Matches sorts the collected pairs in place; it is meant to be called once,
// after the scoring workers have stopped.
func (s *BestPairSink) Matches(limit int) []ScoredPair {
	sort.Slice(s.pairs, func(i, j int) bool {
		a, b := s.pairs[i], s.pairs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LeftID != b.LeftID {
			return a.LeftID > b.LeftID
		}
		return a.RightID > b.RightID
	})

	takenLeft := roaring.New()
	takenRight := roaring.New()

	matches := make([]ScoredPair, 0, limit)
	for _, pair := range s.pairs {
		if len(matches) >= limit {
			break
		}
		if takenLeft.Contains(pair.LeftID) || takenRight.Contains(pair.RightID) {
			continue
		}
		takenLeft.Add(pair.LeftID)
		takenRight.Add(pair.RightID)
		matches = append(matches, pair)
	}
	return matches
}
