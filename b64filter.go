// This file implements the base64 document filter: it pipes whole documents
// through a line-oriented child process while preserving document
// boundaries.
//
// PROTOCOL:
// The feeder decodes each input line into its raw document text, makes sure
// the text ends with a newline, and counts the newlines. That line count is
// the record descriptor: it is produced to the descriptor queue strictly
// before the document's bytes are written to the child, so the reader always
// learns how many lines to expect before the child can possibly emit them.
// The reader pops a count, reads exactly that many lines back from the
// child, glues them into one document, and re-encodes it onto stdout. A
// count of zero is the poison.
//
// CONSISTENCY CHECK:
// If the descriptor queue is empty right after a document has been consumed
// but the child still has output buffered, then the child emitted output it
// was never given input for — a child that inserts or splits lines would
// silently shear every following document, so the filter fails loudly
// instead.
package docalign

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Child protocol errors shared by both filters.
var (
	// ErrChildTruncated means the child closed its stdout while more lines
	// were still owed.
	ErrChildTruncated = errors.New("sub-process stopped producing while expecting more lines")

	// ErrChildSpuriousOutput means the child produced output with no
	// pending record to attribute it to.
	ErrChildSpuriousOutput = errors.New("sub-process is producing more output than it was given input")
)

// readLine returns the next line of r without its trailing newline. A final
// line without a newline is still returned; after that, io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	switch {
	case err == nil:
		return strings.TrimSuffix(s, "\n"), nil
	case err == io.EOF && s != "":
		return s, nil
	default:
		return "", err
	}
}

// RunB64Filter starts child and pumps every base64-encoded document from
// input through it, writing the re-encoded results to output. It returns
// the child's exit code once both the feeder and the reader have finished.
func RunB64Filter(input io.Reader, output io.Writer, child *Subprocess) (int, error) {
	if err := child.Start(); err != nil {
		return 0, err
	}

	counts := NewSingleProducerQueue[int]()

	var g errgroup.Group
	g.Go(func() error { return b64Feed(input, child.In, counts) })
	g.Go(func() error { return b64Read(child.Out, output, counts) })
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

// b64Feed decodes documents from input and feeds them to the child,
// announcing each document's line count on the descriptor queue first. On
// return — error or not — the poison is produced and the child's stdin
// closed, so the reader and the child always unblock.
func b64Feed(input io.Reader, childIn *os.File, counts *SingleProducerQueue[int]) error {
	poisoned := false
	defer func() {
		if !poisoned {
			counts.Produce(0)
		}
		childIn.Close()
	}()

	in := bufio.NewReaderSize(input, 1<<20)
	w := bufio.NewWriter(childIn)
	var doc []byte

	for {
		line, err := readLine(in)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		doc = doc[:0]
		if cap(doc) < base64.StdEncoding.DecodedLen(len(line)) {
			doc = make([]byte, 0, base64.StdEncoding.DecodedLen(len(line)))
		}
		doc = doc[:base64.StdEncoding.DecodedLen(len(line))]
		n, err := base64.StdEncoding.Decode(doc, []byte(line))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrMalformedBase64, line)
		}
		doc = doc[:n]

		// The document must end in a newline so the next document starts
		// on its own line and the line count below stays truthful.
		if len(doc) == 0 || doc[len(doc)-1] != '\n' {
			doc = append(doc, '\n')
		}

		// Descriptor strictly before bytes; the reader's consistency
		// check depends on this ordering.
		counts.Produce(bytes.Count(doc, []byte{'\n'}))

		if _, err := w.Write(doc); err != nil {
			return fmt.Errorf("write to sub-process: %w", err)
		}
		// Deliver the document now; the reader is already waiting on its
		// line count.
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush to sub-process: %w", err)
		}
	}

	counts.Produce(0)
	poisoned = true
	return nil
}

// b64Read reassembles the child's output into documents and re-encodes them
// onto output.
func b64Read(childOut *os.File, output io.Writer, counts *SingleProducerQueue[int]) error {
	defer childOut.Close()

	r := bufio.NewReaderSize(childOut, 1<<20)
	w := bufio.NewWriter(output)
	var doc bytes.Buffer

	for {
		remaining := counts.Consume()
		if remaining == 0 {
			break
		}

		doc.Reset()
		for ; remaining > 0; remaining-- {
			line, err := readLine(r)
			if err == io.EOF {
				return ErrChildTruncated
			}
			if err != nil {
				return fmt.Errorf("read from sub-process: %w", err)
			}
			doc.WriteString(line)
			doc.WriteByte('\n')
		}

		if _, err := w.WriteString(base64.StdEncoding.EncodeToString(doc.Bytes())); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		// Caught up with the producer? Then the child cannot have more
		// output yet: its next input's descriptor would have been queued
		// before the input itself. Peek blocks until the child produces
		// something or exits; if the descriptor still has not arrived by
		// then, the output is unrequested.
		if counts.Empty() {
			if _, err := r.Peek(1); err != nil {
				if err == io.EOF {
					// The child exited; let Consume decide whether the
					// poison (clean end) or a truncated document follows.
					continue
				}
				return fmt.Errorf("peek sub-process output: %w", err)
			}
			if counts.Empty() {
				return ErrChildSpuriousOutput
			}
		}
	}

	return w.Flush()
}
