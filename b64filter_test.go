package docalign

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func b64Line(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func runB64(t *testing.T, input string, name string, args ...string) (string, int, error) {
	t.Helper()
	var out bytes.Buffer
	code, err := RunB64Filter(strings.NewReader(input), &out, NewSubprocess(name, args...))
	return out.String(), code, err
}

// TestB64FilterIdentity checks the round-trip property: with cat as the
// child the output equals the input byte-for-byte.
func TestB64FilterIdentity(t *testing.T) {
	docs := []string{
		"hello\n",
		"line one\nline two\nline three\n",
		"\n",
		"tabs\tand spaces\n",
	}
	var input strings.Builder
	for _, doc := range docs {
		input.WriteString(b64Line(doc))
		input.WriteByte('\n')
	}

	got, code, err := runB64(t, input.String(), "cat")
	if err != nil {
		t.Fatalf("RunB64Filter error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got != input.String() {
		t.Errorf("output = %q, want input %q", got, input.String())
	}
}

// TestB64FilterUppercase reproduces the reference scenario: tr a-z A-Z
// turns aGVsbG8K (hello) into SEVMTE8K (HELLO).
func TestB64FilterUppercase(t *testing.T) {
	got, code, err := runB64(t, "aGVsbG8K\n", "tr", "a-z", "A-Z")
	if err != nil {
		t.Fatalf("RunB64Filter error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got != "SEVMTE8K\n" {
		t.Errorf("output = %q, want %q", got, "SEVMTE8K\n")
	}
}

// TestB64FilterAppendsNewline checks that a document without a trailing
// newline is terminated before the child sees it, keeping line counts
// truthful.
func TestB64FilterAppendsNewline(t *testing.T) {
	got, _, err := runB64(t, b64Line("no newline")+"\n", "cat")
	if err != nil {
		t.Fatalf("RunB64Filter error = %v", err)
	}
	if got != b64Line("no newline\n")+"\n" {
		t.Errorf("output = %q, want %q", got, b64Line("no newline\n")+"\n")
	}
}

// TestB64FilterExitCode checks the child's exit code is passed through.
func TestB64FilterExitCode(t *testing.T) {
	_, code, err := runB64(t, "", "sh", "-c", "cat; exit 7")
	if err != nil {
		t.Fatalf("RunB64Filter error = %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

// TestB64FilterMalformedInput checks the decode error path.
func TestB64FilterMalformedInput(t *testing.T) {
	_, _, err := runB64(t, "???not-base64???\n", "cat")
	if !errors.Is(err, ErrMalformedBase64) {
		t.Errorf("error = %v, want ErrMalformedBase64", err)
	}
}

// TestB64FilterTruncatingChild checks that a child swallowing lines is
// detected instead of shearing documents.
func TestB64FilterTruncatingChild(t *testing.T) {
	input := b64Line("one\ntwo\nthree\n") + "\n"
	_, _, err := runB64(t, input, "head", "-n", "1")
	if err == nil {
		t.Error("truncating child did not produce an error")
	}
}

// gatedReader yields its payload, then blocks until released, then EOF. It
// lets a test hold the filter's feeder mid-stream.
type gatedReader struct {
	payload  *strings.Reader
	released chan struct{}
}

func (r *gatedReader) Read(p []byte) (int, error) {
	n, err := r.payload.Read(p)
	if err == io.EOF && n == 0 {
		<-r.released
		return 0, io.EOF
	}
	return n, nil
}

// TestB64FilterSpuriousOutput checks the consistency check: a child that
// emits lines beyond its input is reported.
func TestB64FilterSpuriousOutput(t *testing.T) {
	// The child echoes its first line, then one it was never asked for.
	script := `read line; echo "$line"; echo spurious; cat >/dev/null`

	input := &gatedReader{
		payload:  strings.NewReader(b64Line("only\n") + "\n"),
		released: make(chan struct{}),
	}
	// Release the feeder only after the reader had ample time to trip the
	// check.
	go func() {
		time.Sleep(time.Second)
		close(input.released)
	}()

	var out bytes.Buffer
	_, err := RunB64Filter(input, &out, NewSubprocess("sh", "-c", script))
	if !errors.Is(err, ErrChildSpuriousOutput) {
		t.Errorf("error = %v, want ErrChildSpuriousOutput", err)
	}
}
