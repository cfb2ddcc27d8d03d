// Package pump implements the per-stream background readers: one task
// per stdout/stderr of a running child, decoding, line-splitting, and
// appending into a ring buffer.
package pump

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/wrangler-run/wrangler/internal/ringbuffer"
)

// Sink is the destination a Pump appends completed lines to.
type Sink interface {
	Append(text string)
}

// Pump reads one stream to completion, line-splitting as it goes, and
// signals Done when the stream is fully drained (EOF or an
// unrecoverable read error).
type Pump struct {
	done chan struct{}
}

// Start launches a goroutine that consumes r until EOF or error,
// appending each complete line to sink. The returned Pump's Wait blocks
// until that goroutine exits.
func Start(r io.Reader, sink Sink) *Pump {
	p := &Pump{done: make(chan struct{})}
	go p.run(r, sink)
	return p
}

func (p *Pump) run(r io.Reader, sink Sink) {
	defer close(p.done)

	reader := bufio.NewReader(r)
	var partial strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			partial.WriteString(line)
		}

		if err == nil {
			sink.Append(toValidUTF8(partial.String()))
			partial.Reset()
			continue
		}

		if errors.Is(err, io.EOF) {
			if partial.Len() > 0 {
				sink.Append(toValidUTF8(partial.String()))
			}
			return
		}

		// Any other read error (other than a cleanly closed pipe) is
		// surfaced as a synthetic line rather than dropped silently.
		if partial.Len() > 0 {
			sink.Append(toValidUTF8(partial.String()))
		}
		sink.Append("[stream error] " + err.Error())
		return
	}
}

// Wait blocks until the pump has fully drained its stream.
func (p *Pump) Wait() { <-p.done }

func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// Pair bundles the stdout/stderr pumps of a single run so callers can
// wait on both with one call (joined by the reaper).
type Pair struct {
	Stdout *Pump
	Stderr *Pump
}

// StartPair starts pumps for both streams into their respective buffers.
func StartPair(stdout, stderr io.Reader, stdoutBuf, stderrBuf *ringbuffer.Buffer) *Pair {
	return &Pair{
		Stdout: Start(stdout, stdoutBuf),
		Stderr: Start(stderr, stderrBuf),
	}
}

// Wait blocks until both pumps have finished draining.
func (p *Pair) Wait() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.Stdout.Wait() }()
	go func() { defer wg.Done(); p.Stderr.Wait() }()
	wg.Wait()
}
