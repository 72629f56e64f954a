// This file implements the three-phase alignment pipeline.
//
// HOW ALIGNMENT WORKS:
// Given a file of machine-translated documents and a file of target-language
// documents (both one base64-encoded document per line), the aligner scores
// every cross pair and reports the ones above a threshold:
//
//  1. Sample phase: both files are read (optionally only every n-th line)
//     and a document-frequency table is built by a worker pool, then pruned
//     to [min_count, max_count].
//  2. Load phase: the translated file is re-read in full; workers parse and
//     TF-IDF every document into a shared refs slice, placing vector
//     storage into a pool. Each worker writes only the slot of its own
//     line, so the slice needs no locking.
//  3. Score phase: the target file is read in full; read workers parse and
//     TF-IDF each document, score workers score it against every loaded
//     ref and report pairs meeting the threshold to the result sink.
//
// All handoffs go through bounded blocking queues, so a slow stage stalls
// the stages above it instead of buffering unboundedly. Poison values (a
// zero Line, a nil ref) propagate end-of-stream; one poison is pushed per
// worker.
//
// Phase diagnostics (document counts, queue block counters) are published
// on a broadcast queue; with Verbose set, a logging listener prints them to
// the diagnostics writer as they happen.
package docalign

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Line is one input line and its 1-based ordinal within the file. The zero
// Line (ordinal 0) is the poison value on the pipeline queues.
type Line struct {
	Text string
	N    uint32
}

// Default pipeline parameters.
const (
	DefaultThreshold    = 0.1
	DefaultMinCount     = 2
	DefaultMaxCount     = 1000
	DefaultDFSampleRate = 1

	// lineQueueSlots and refQueueSlots are queue capacity per worker.
	lineQueueSlots = 128
	refQueueSlots  = 256
)

// AlignerConfig configures an alignment run. For NGramSize, Jobs,
// DFSampleRate, MinCount, MaxCount, Output and Diagnostics the zero value
// means the default; the other fields, Threshold included, are used as given.
type AlignerConfig struct {
	// NGramSize is the token window size (default 2).
	NGramSize int
	// Jobs is the worker pool size (default: number of CPUs).
	Jobs int
	// DFSampleRate makes the sample phase read only every n-th document.
	DFSampleRate int
	// MinCount and MaxCount bound the DF table, both inclusive.
	MinCount int
	MaxCount int
	// Threshold is the minimum score to report.
	Threshold float32
	// BestOnly selects the conflict-free best matching instead of
	// printing every pair above the threshold.
	BestOnly bool
	// Words, Normalize: see ReaderOptions.
	Words     bool
	Normalize bool
	// Quantize stores loaded vectors as half floats to halve memory.
	Quantize bool
	// Verbose prints phase diagnostics to Diagnostics.
	Verbose bool
	// Output receives the result lines (default os.Stdout).
	Output io.Writer
	// Diagnostics receives verbose output (default os.Stderr).
	Diagnostics io.Writer
}

// phaseEvent is one diagnostic message; done marks the end of the stream.
type phaseEvent struct {
	msg  string
	done bool
}

// Aligner runs the three-phase pipeline for one pair of input files.
type Aligner struct {
	cfg    AlignerConfig
	opts   ReaderOptions
	events *BroadcastQueue[phaseEvent]
}

// NewAligner returns an aligner with defaults applied.
func NewAligner(cfg AlignerConfig) *Aligner {
	if cfg.NGramSize < 1 {
		cfg.NGramSize = DefaultNGramSize
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = runtime.NumCPU()
	}
	if cfg.DFSampleRate < 1 {
		cfg.DFSampleRate = DefaultDFSampleRate
	}
	if cfg.MinCount < 1 {
		cfg.MinCount = DefaultMinCount
	}
	if cfg.MaxCount < 1 {
		cfg.MaxCount = DefaultMaxCount
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stderr
	}
	return &Aligner{
		cfg: cfg,
		opts: ReaderOptions{
			NGramSize: cfg.NGramSize,
			Words:     cfg.Words,
			Normalize: cfg.Normalize,
		},
		events: NewBroadcastQueue[phaseEvent](),
	}
}

// say publishes one diagnostic message.
func (a *Aligner) say(format string, args ...any) {
	a.events.Push(phaseEvent{msg: fmt.Sprintf(format, args...)})
}

// queueLines reads path line by line, pushing every skipRate-th line onto
// the queue with its 1-based ordinal. The returned count includes skipped
// lines.
func queueLines(path string, queue *BlockingQueue[Line], skipRate int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	count := 0
	for {
		line, err := readLine(r)
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read %s: %w", path, err)
		}
		count++
		if (count-1)%skipRate != 0 {
			continue
		}
		queue.Push(Line{Text: line, N: uint32(count)})
	}
}

// poison pushes one end-of-stream marker per worker.
func poison[T any](queue *BlockingQueue[T], workers int) {
	var zero T
	for i := 0; i < workers; i++ {
		queue.Push(zero)
	}
}

// Align runs the full pipeline over the two input files and writes results
// to the configured output.
func (a *Aligner) Align(translatedPath, targetPath string) error {
	var logDone chan struct{}
	if a.cfg.Verbose {
		listener := a.events.Listen()
		logDone = make(chan struct{})
		go func() {
			defer close(logDone)
			logger := log.New(a.cfg.Diagnostics, "", 0)
			for {
				ev := listener.Pop()
				if ev.done {
					return
				}
				logger.Print(ev.msg)
			}
		}()
	}
	defer func() {
		a.events.Push(phaseEvent{done: true})
		if logDone != nil {
			<-logDone
		}
	}()

	df, translatedCount, targetCount, err := a.sampleDF(translatedPath, targetPath)
	if err != nil {
		return err
	}
	documentCount := translatedCount + targetCount

	before := len(df)
	removed := df.Prune(a.cfg.MinCount, a.cfg.MaxCount)
	if before > 0 {
		a.say("Pruned %d (%.1f%%) entries from DF", removed, 100*float64(removed)/float64(before))
	}

	refs, err := a.loadRefs(translatedPath, translatedCount, documentCount, df)
	if err != nil {
		return err
	}

	return a.score(targetPath, refs, documentCount, df, min(translatedCount, targetCount))
}

// sampleDF builds the document-frequency table from both files and returns
// it together with the two files' total line counts.
func (a *Aligner) sampleDF(translatedPath, targetPath string) (FrequencyTable, int, int, error) {
	df := make(FrequencyTable)
	var dfMu sync.Mutex

	queue := NewBlockingQueue[Line](a.cfg.Jobs * lineQueueSlots)
	var g errgroup.Group
	for i := 0; i < a.cfg.Jobs; i++ {
		g.Go(func() error {
			local := make(FrequencyTable)
			var firstErr error
			for {
				line := queue.Pop()
				if line.N == 0 {
					break
				}
				if firstErr != nil {
					continue
				}
				var doc Document
				if err := ReadDocument([]byte(line.Text), &doc, a.opts); err != nil {
					firstErr = err
					continue
				}
				local.AddDocument(&doc)
			}
			// Merge once, on exit, so the shared table sees one short
			// critical section per worker instead of one per document.
			dfMu.Lock()
			df.MergeScaled(local, a.cfg.DFSampleRate)
			dfMu.Unlock()
			return firstErr
		})
	}

	targetCount, readErr := queueLines(targetPath, queue, a.cfg.DFSampleRate)
	var translatedCount int
	if readErr == nil {
		translatedCount, readErr = queueLines(translatedPath, queue, a.cfg.DFSampleRate)
	}

	poison(queue, a.cfg.Jobs)
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}
	if readErr != nil {
		return nil, 0, 0, readErr
	}

	a.say("Calculated DF from %d documents", (translatedCount+targetCount)/a.cfg.DFSampleRate)
	a.say("DF queue performance:\n%s", queue.Stats())
	return df, translatedCount, targetCount, nil
}

// loadRefs re-reads the translated file in full and TF-IDFs every document
// into a refs slice indexed by line ordinal minus one. Workers write
// disjoint slots, so the slice itself needs no locking; vector storage goes
// through a shared pool.
func (a *Aligner) loadRefs(translatedPath string, translatedCount, documentCount int, df FrequencyTable) ([]DocumentRef, error) {
	refs := make([]DocumentRef, translatedCount)
	pool := NewVectorPool(a.cfg.Quantize)

	queue := NewBlockingQueue[Line](a.cfg.Jobs * lineQueueSlots)
	var g errgroup.Group
	for i := 0; i < a.cfg.Jobs; i++ {
		g.Go(func() error {
			var firstErr error
			for {
				line := queue.Pop()
				if line.N == 0 {
					break
				}
				if firstErr != nil {
					continue
				}
				if int(line.N) > len(refs) {
					firstErr = fmt.Errorf("%s grew while reading: line %d past initial count %d",
						translatedPath, line.N, len(refs))
					continue
				}
				doc := Document{ID: line.N}
				if err := ReadDocument([]byte(line.Text), &doc, a.opts); err != nil {
					firstErr = err
					continue
				}
				ref := &refs[line.N-1]
				CalculateTFIDF(&doc, ref, documentCount, df)
				pool.Place(ref)
			}
			return firstErr
		})
	}

	_, readErr := queueLines(translatedPath, queue, 1)
	poison(queue, a.cfg.Jobs)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}

	a.say("Read %d documents into memory", len(refs))
	a.say("Load queue performance:\n%s", queue.Stats())
	return refs, nil
}

// score reads the target file, TF-IDFs every document and scores it against
// every loaded ref, reporting pairs meeting the threshold.
func (a *Aligner) score(targetPath string, refs []DocumentRef, documentCount int, df FrequencyTable, matchLimit int) error {
	out := bufio.NewWriter(a.cfg.Output)

	var sink ScoreSink
	var best *BestPairSink
	if a.cfg.BestOnly {
		best = NewBestPairSink()
		sink = best
	} else {
		sink = NewAllPairsSink(out)
	}

	readQueue := NewBlockingQueue[Line](readWorkerCount(a.cfg.Jobs) * lineQueueSlots)
	scoreQueue := NewBlockingQueue[*DocumentRef](a.cfg.Jobs * refQueueSlots)

	var readGroup errgroup.Group
	for i := 0; i < readWorkerCount(a.cfg.Jobs); i++ {
		readGroup.Go(func() error {
			var firstErr error
			for {
				line := readQueue.Pop()
				if line.N == 0 {
					break
				}
				if firstErr != nil {
					continue
				}
				doc := Document{ID: line.N}
				if err := ReadDocument([]byte(line.Text), &doc, a.opts); err != nil {
					firstErr = err
					continue
				}
				ref := &DocumentRef{}
				CalculateTFIDF(&doc, ref, documentCount, df)
				scoreQueue.Push(ref)
			}
			return firstErr
		})
	}

	var scoreGroup errgroup.Group
	for i := 0; i < a.cfg.Jobs; i++ {
		scoreGroup.Go(func() error {
			for {
				ref := scoreQueue.Pop()
				if ref == nil {
					break
				}
				for j := range refs {
					score := CalculateAlignment(&refs[j], ref)
					if score < a.cfg.Threshold {
						continue
					}
					sink.Record(score, refs[j].ID, ref.ID)
				}
			}
			return nil
		})
	}

	_, readErr := queueLines(targetPath, readQueue, 1)

	poison(readQueue, readWorkerCount(a.cfg.Jobs))
	parseErr := readGroup.Wait()

	poison(scoreQueue, a.cfg.Jobs)
	if err := scoreGroup.Wait(); err != nil {
		return err
	}
	if parseErr != nil {
		return parseErr
	}
	if readErr != nil {
		return readErr
	}

	if best != nil {
		for _, pair := range best.Matches(matchLimit) {
			WriteScore(out, pair.Score, pair.LeftID, pair.RightID)
		}
	}

	a.say("Read queue performance (Note: blocks when score queue fills up):\n%s", readQueue.Stats())
	a.say("Score queue performance:\n%s", scoreQueue.Stats())
	return out.Flush()
}

// readWorkerCount caps the decode pool: base64 decoding is not the
// bottleneck, so past four workers the extra threads only add contention.
func readWorkerCount(jobs int) int {
	return min(max(jobs/4, 1), 4)
}
