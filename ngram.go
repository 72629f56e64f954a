// Package docalign implements the numeric and concurrency core of a
// bitext-mining pipeline: character-n-gram TF-IDF indexing of base64-encoded
// token documents, sparse-vector scoring, and the streaming machinery that
// ties them together. See doc.go for an overview.
//
// This file implements the n-gram fingerprinter. Documents arrive as token
// streams; each token is hashed with MurmurHash3 (x86, 32-bit, seed 0) and a
// window of k consecutive token hashes is folded into a single 32-bit
// fingerprint. Two documents sharing many fingerprints are likely to share
// many token sequences, which is the signal the aligner scores on.
package docalign

import (
	"bytes"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/spaolacci/murmur3"
)

// NGram is the 32-bit fingerprint of a window of k consecutive tokens.
type NGram uint32

// DefaultNGramSize is the token window size used when none is configured.
const DefaultNGramSize = 2

// hashCombineMagic seeds the fold so that combine(h, 0) != h.
const hashCombineMagic = 0x9e3779b9

// hashCombine folds one token hash into the running n-gram hash.
func hashCombine(token, acc uint32) uint32 {
	return token ^ (acc + hashCombineMagic + (token << 6) + (token >> 2))
}

// TokenSource yields the successive tokens of a document.
type TokenSource interface {
	// NextToken returns the next token of the document, or ok == false once
	// the document is exhausted. The returned slice may alias the document
	// buffer and is only valid until the next call.
	NextToken() (token []byte, ok bool)
}

// WhitespaceTokens splits a document on spaces and newlines, skipping empty
// tokens. This is the wire format of pre-tokenized corpora: one document per
// line, tokens separated by single spaces, original line breaks encoded as
// newlines inside the base64 payload.
type WhitespaceTokens struct {
	text []byte
	pos  int
}

// NewWhitespaceTokens returns a TokenSource over text.
func NewWhitespaceTokens(text []byte) *WhitespaceTokens {
	return &WhitespaceTokens{text: text}
}

// NextToken returns the next whitespace-delimited token.
func (t *WhitespaceTokens) NextToken() ([]byte, bool) {
	for t.pos < len(t.text) && (t.text[t.pos] == ' ' || t.text[t.pos] == '\n') {
		t.pos++
	}
	if t.pos >= len(t.text) {
		return nil, false
	}
	start := t.pos
	for t.pos < len(t.text) && t.text[t.pos] != ' ' && t.text[t.pos] != '\n' {
		t.pos++
	}
	return t.text[start:t.pos], true
}

type tokenFunc func() ([]byte, bool)

func (f tokenFunc) NextToken() ([]byte, bool) { return f() }

// NewSegmentedTokens returns a TokenSource that segments text with UAX#29
// word segmentation instead of splitting on whitespace. Segments consisting
// solely of whitespace are discarded. Intended for corpora that were not
// pre-tokenized; the default whitespace split remains byte-exact with the
// established wire format.
func NewSegmentedTokens(text []byte) TokenSource {
	toks := words.FromBytes(text)
	return tokenFunc(func() ([]byte, bool) {
		for toks.Next() {
			tok := bytes.TrimSpace(toks.Value())
			if len(tok) > 0 {
				return tok, true
			}
		}
		return nil, false
	})
}

// NGramIter produces the rolling n-gram fingerprints of a token stream.
//
// The iterator keeps a ring buffer of the last k token hashes. For every new
// token the window hashes are folded newest-first into a single fingerprint:
//
//	h = 0
//	for each token hash t in window, newest to oldest:
//	    h = t ^ (h + 0x9e3779b9 + (t << 6) + (t >> 2))
//
// A document with fewer than k tokens produces no fingerprints.
//
// Usage:
//
//	for it := NewNGramIter(NewWhitespaceTokens(body), 2); it.Next(); {
//	    vocab[it.NGram()]++
//	}
type NGramIter struct {
	tokens TokenSource
	size   int
	window []uint32 // ring buffer of token hashes
	pos    int      // number of token hashes written so far
	cur    NGram
	done   bool
}

// NewNGramIter returns an iterator over the n-grams of size consecutive
// tokens. A size below 1 is treated as DefaultNGramSize.
func NewNGramIter(tokens TokenSource, size int) *NGramIter {
	if size < 1 {
		size = DefaultNGramSize
	}
	it := &NGramIter{
		tokens: tokens,
		size:   size,
		window: make([]uint32, size),
	}
	// Pre-fill the first size-1 hashes; the first call to Next completes
	// the initial window.
	for it.pos < size-1 {
		tok, ok := tokens.NextToken()
		if !ok {
			it.done = true
			break
		}
		it.window[it.pos] = murmur3.Sum32WithSeed(tok, 0)
		it.pos++
	}
	return it
}

// Next advances to the next n-gram. It returns false once the token stream
// is exhausted.
func (it *NGramIter) Next() bool {
	if it.done {
		return false
	}
	tok, ok := it.tokens.NextToken()
	if !ok {
		it.done = true
		return false
	}
	it.window[it.pos%it.size] = murmur3.Sum32WithSeed(tok, 0)

	var h uint32
	for offset := 0; offset < it.size; offset++ {
		h = hashCombine(it.window[(it.pos-offset)%it.size], h)
	}
	it.cur = NGram(h)
	it.pos++
	return true
}

// NGram returns the fingerprint at the current position. Only valid after a
// call to Next that returned true.
func (it *NGramIter) NGram() NGram {
	return it.cur
}
