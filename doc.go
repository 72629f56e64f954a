/*
Package docalign computes cross-lingual document alignments between two
collections of tokenized documents, one of which has been machine-translated
into the language of the other. It is the numeric and concurrency core of a
bitext-mining pipeline.

# Overview

Each input file holds one document per line, base64-encoded. A document is
turned into a sparse TF-IDF vector over 32-bit n-gram fingerprints; the
alignment score of two documents is the dot product of their normalized
vectors. The Aligner streams both files through a three-phase worker
pipeline (sample document frequencies, load the translated side, score the
target side) and reports either every pair above a threshold or a
conflict-free best matching.

	aligner := docalign.NewAligner(docalign.AlignerConfig{
	    Threshold: 0.1,
	    BestOnly:  true,
	})
	if err := aligner.Align("translated.b64", "english.b64"); err != nil {
	    log.Fatal(err)
	}

# Building blocks

The pieces the pipeline is assembled from are exported and usable on their
own:

  - NGramIter: rolling MurmurHash3-based n-gram fingerprints over a token
    stream
  - SparseVector: sorted sparse vectors with linear, galloping and
    SIMD-backed dot-product kernels
  - FrequencyTable: the document-frequency table with range pruning
  - BlockingQueue: bounded MPMC handoff with backpressure diagnostics
  - BroadcastQueue: single-producer stream fan-out with late-joining
    listeners
  - VectorPool: arena storage for loaded document vectors, optionally
    half-float quantized
  - BestPairSink: deterministic greedy one-to-one matching

# Filters

Two subprocess filters solve the companion problem of piping documents
through line-oriented Unix tools without losing record boundaries:
RunB64Filter feeds whole decoded documents to a child process and re-groups
its output lines per document; RunFoldFilter wraps overlong UTF-8 lines at
preferred delimiters before the child sees them and reassembles the output
byte-exactly. Both are exposed as the b64filter and foldfilter commands,
alongside the docalign command for the aligner itself.
*/
package docalign
