// This file implements the document parser and the TF-IDF transform.
//
// WIRE FORMAT:
// Each input line is one document: the base64 encoding of its UTF-8 token
// text. Decoded content is whitespace-separated tokens, with any original
// line breaks preserved as newlines inside the payload (both count as token
// separators).
//
// TF-IDF:
// A parsed document is a bag of n-gram fingerprints. The transform turns it
// into a sparse weighted vector using the smoothed form
//
//	w = ln(tf + 1) * ln(D / (1 + df))
//
// where tf is the fingerprint's count in this document, D the total number
// of documents on both sides, and df the number of documents the
// fingerprint occurs in. Fingerprints absent from the document-frequency
// table contribute nothing. The vector is then L2-normalized so that the
// dot product of two documents is their cosine similarity; a document whose
// weights are all zero keeps its zero vector.
package docalign

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedBase64 is returned for input lines that do not decode.
var ErrMalformedBase64 = errors.New("malformed base64 input")

// Document is the transient parse result of one input line: its 1-based
// line ordinal and the occurrence count of every n-gram fingerprint.
type Document struct {
	ID    uint32
	Vocab map[NGram]int
}

// DocumentRef is the persistent form of a document: its ordinal plus the
// L2-normalized TF-IDF vector. Refs on the translated side live for the
// whole scoring phase and are shared read-only across scoring workers.
type DocumentRef struct {
	ID      uint32
	WordVec SparseVector

	// packed is the half-float form of WordVec when the ref was placed
	// into a quantizing VectorPool; WordVec is empty in that case.
	packed *PackedVector
}

// ReaderOptions configures document parsing.
type ReaderOptions struct {
	// NGramSize is the token window size; below 1 means DefaultNGramSize.
	NGramSize int

	// Words selects UAX#29 word segmentation instead of the whitespace
	// split. Only useful on corpora that were not pre-tokenized.
	Words bool

	// Normalize applies NFKC normalization to the decoded text before
	// tokenization.
	Normalize bool
}

// ReadDocument decodes one base64-encoded line and counts its n-gram
// fingerprints into doc.Vocab. The document ID is left untouched.
func ReadDocument(encoded []byte, doc *Document, opts ReaderOptions) error {
	body := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(body, encoded)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedBase64, encoded)
	}
	body = body[:n]

	if opts.Normalize {
		body = norm.NFKC.Bytes(body)
	}

	var tokens TokenSource
	if opts.Words {
		tokens = NewSegmentedTokens(body)
	} else {
		tokens = NewWhitespaceTokens(body)
	}

	if doc.Vocab == nil {
		doc.Vocab = make(map[NGram]int)
	}
	for it := NewNGramIter(tokens, opts.NGramSize); it.Next(); {
		doc.Vocab[it.NGram()]++
	}
	return nil
}

// tfidfWeight computes the smoothed TF-IDF weight of one term.
func tfidfWeight(tf, documentCount, df int) float32 {
	return float32(math.Log(float64(tf)+1)) *
		float32(math.Log(float64(documentCount)/(1+float64(df))))
}

// CalculateTFIDF converts a parsed document into its normalized TF-IDF
// vector. Only fingerprints present in df contribute; all others are
// skipped. When every weight is zero the vector is left as the zero vector
// and the document will simply never score.
func CalculateTFIDF(doc *Document, ref *DocumentRef, documentCount int, df FrequencyTable) {
	ref.ID = doc.ID
	ref.WordVec.Reserve(len(doc.Vocab))

	var sumSquares float32
	for ngram, tf := range doc.Vocab {
		count, ok := df[ngram]
		if !ok {
			continue
		}
		w := tfidfWeight(tf, documentCount, count)
		sumSquares += w * w
		*ref.WordVec.Insert(uint32(ngram)) = w
	}

	l2 := float32(math.Sqrt(float64(sumSquares)))
	if l2 == 0 {
		return
	}
	_ = ref.WordVec.DivideBy(l2)
}

// CalculateAlignment scores two documents: the dot product of their
// normalized TF-IDF vectors.
func CalculateAlignment(left, right *DocumentRef) float32 {
	if left.packed != nil {
		return left.packed.Dot(&right.WordVec)
	}
	return left.WordVec.Dot(&right.WordVec)
}
