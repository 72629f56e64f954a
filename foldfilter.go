// This file implements the fold filter: it wraps overlong UTF-8 lines at
// preferred delimiters before a line-oriented child sees them and glues the
// child's output back together afterwards.
//
// Some children (tokenizers, translators) misbehave or crawl on very long
// lines. The filter chops each long sentence into segments of roughly the
// configured width, remembering the delimiter bytes it cut out, feeds the
// segments to the child as separate lines, and reassembles the child's
// output lines with the saved delimiter fragments in between. As long as
// the child maps lines one-to-one, the reassembled sentence is byte-exact
// for an identity child.
package docalign

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidUTF8 is returned when the fold filter encounters a line that is
// not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf-8 input")

// DefaultFoldWidth is the default wrapping column in bytes.
const DefaultFoldWidth = 40

// foldDelimiters lists the cut candidates in descending preference: the
// first of these seen since the previous cut wins.
var foldDelimiters = [...]byte{':', ',', ' ', '-', '.'}

// isFoldDelimiter maps a byte to its 1-based preference rank, 0 meaning not
// a delimiter.
var isFoldDelimiter [256]uint8

func init() {
	for i, d := range foldDelimiters {
		isFoldDelimiter[d] = uint8(i + 1)
	}
}

// WrapLine chops line into segments at preferred delimiters so that no
// segment exceeds width bytes, except that a segment may run on to the end
// of a multi-byte codepoint that straddles the width. It returns the segments and, for each segment, the delimiter
// fragment that was cut out after it; concatenating segment[i] + delim[i]
// in order reproduces line byte-for-byte. The final fragment is empty
// whenever the line has a trailing segment.
//
// The scan walks codepoints, so cuts never land inside a multi-byte
// sequence: the last-resort cut (no delimiter seen since the previous cut)
// moves the entire current codepoint into the fragment.
func WrapLine(line string, width int) (segments, delims []string, err error) {
	if width < 1 {
		width = 1
	}

	var posDelimiter [len(foldDelimiters)]int
	lastCut := 0

	for pos := 0; pos < len(line); {
		r, size := utf8.DecodeRuneInString(line[pos:])
		if r == utf8.RuneError && size == 1 {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidUTF8, line)
		}
		if size == 1 {
			if d := isFoldDelimiter[line[pos]]; d != 0 {
				posDelimiter[d-1] = pos
			}
		}

		if pos-lastCut >= width {
			// Last resort: cut right here, the current codepoint becomes
			// the fragment.
			cut, cutEnd := pos, pos+size
			for i := range foldDelimiters {
				if posDelimiter[i] > lastCut {
					cut, cutEnd = posDelimiter[i], posDelimiter[i]+1
					break
				}
			}
			// Absorb the adjacent delimiter run into the fragment; the
			// segment after the cut resumes at the first real character.
			for cutEnd < len(line) && isFoldDelimiter[line[cutEnd]] != 0 {
				cutEnd++
			}

			segments = append(segments, line[lastCut:cut])
			delims = append(delims, line[cut:cutEnd])
			lastCut = cutEnd
		}

		pos += size
	}

	if lastCut < len(line) {
		segments = append(segments, line[lastCut:])
		delims = append(delims, "")
	}
	return segments, delims, nil
}

// RunFoldFilter starts child and pumps every line from input through it,
// wrapping lines longer than width bytes and unwrapping the child's output.
// It returns the child's exit code once both pump goroutines have finished.
func RunFoldFilter(input io.Reader, output io.Writer, child *Subprocess, width int) (int, error) {
	if width < 1 {
		width = DefaultFoldWidth
	}
	if err := child.Start(); err != nil {
		return 0, err
	}

	// Descriptor queue: the saved delimiter fragments of each sentence.
	// An empty list is the poison; a real sentence always carries at
	// least one fragment.
	fragments := NewSingleProducerQueue[[]string]()

	var g errgroup.Group
	g.Go(func() error { return foldFeed(input, child.In, fragments, width) })
	g.Go(func() error { return foldRead(child.Out, output, fragments) })
	err := g.Wait()

	code, waitErr := child.Wait()
	if err != nil {
		return 0, err
	}
	if waitErr != nil {
		return 0, waitErr
	}
	return code, nil
}

// foldFeed wraps input sentences and feeds the segments to the child,
// announcing each sentence's delimiter fragments on the descriptor queue
// first.
func foldFeed(input io.Reader, childIn *os.File, fragments *SingleProducerQueue[[]string], width int) error {
	poisoned := false
	defer func() {
		if !poisoned {
			fragments.Produce(nil)
		}
		childIn.Close()
	}()

	in := bufio.NewReaderSize(input, 1<<20)
	w := bufio.NewWriter(childIn)

	for {
		sentence, err := readLine(in)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		// Even an empty sentence is one line that must round-trip through
		// the child.
		segments := []string{sentence}
		delims := []string{""}
		if len(sentence) > width {
			segments, delims, err = WrapLine(sentence, width)
			if err != nil {
				return err
			}
		}

		// Descriptor strictly before bytes; the reader's consistency
		// check depends on this ordering.
		fragments.Produce(delims)

		for _, segment := range segments {
			if _, err := w.WriteString(segment); err != nil {
				return fmt.Errorf("write to sub-process: %w", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return fmt.Errorf("write to sub-process: %w", err)
			}
		}
		// Deliver the sentence now; the reader is already waiting on its
		// fragment list.
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush to sub-process: %w", err)
		}
	}

	fragments.Produce(nil)
	poisoned = true
	return nil
}

// foldRead reassembles the child's output lines into sentences using the
// saved delimiter fragments.
func foldRead(childOut *os.File, output io.Writer, fragments *SingleProducerQueue[[]string]) error {
	defer childOut.Close()

	r := bufio.NewReaderSize(childOut, 1<<20)
	w := bufio.NewWriter(output)
	var sentence strings.Builder

	for {
		delims := fragments.Consume()
		if len(delims) == 0 {
			break
		}

		sentence.Reset()
		for _, delim := range delims {
			line, err := readLine(r)
			if err == io.EOF {
				return ErrChildTruncated
			}
			if err != nil {
				return fmt.Errorf("read from sub-process: %w", err)
			}
			sentence.WriteString(line)
			sentence.WriteString(delim)
		}

		if _, err := w.WriteString(sentence.String()); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		// Same consistency check as the base64 filter: caught up with the
		// producer means the child must be quiet too.
		if fragments.Empty() {
			if _, err := r.Peek(1); err != nil {
				if err == io.EOF {
					continue
				}
				return fmt.Errorf("peek sub-process output: %w", err)
			}
			if fragments.Empty() {
				return ErrChildSpuriousOutput
			}
		}
	}

	return w.Flush()
}
