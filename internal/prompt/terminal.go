package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Terminal prompts on a line-oriented reader and writer, one request at a time.
// A line belongs to the request on screen when it was read; lines typed
// while no request is shown are discarded.
type Terminal struct {
	mu   sync.Mutex // serialises prompts
	in   *bufio.Reader
	once sync.Once

	state   sync.Mutex // guards out, cur, eof, readErr
	out     io.Writer
	cur     *pendingAnswer
	eof     chan struct{}
	readErr error
}

// pendingAnswer is the slot for the request currently on screen.
type pendingAnswer struct {
	line chan string
	done chan struct{}
}

// NewTerminal returns a Terminal on in/out; nil means stdin/stderr.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &Terminal{in: bufio.NewReader(in), out: out, eof: make(chan struct{})}
}

// readLines hands each line to the request on screen until the reader
// fails, then closes t.eof.
func (t *Terminal) readLines() {
	for {
		line, err := t.in.ReadString('\n')
		if line != "" || err == nil {
			t.deliver(line)
		}
		if err != nil {
			t.state.Lock()
			if err != io.EOF {
				t.readErr = err
			}
			t.state.Unlock()
			close(t.eof)
			return
		}
	}
}

func (t *Terminal) deliver(line string) {
	t.state.Lock()
	p := t.cur
	if p == nil {
		fmt.Fprintln(t.out, "(no request pending, input ignored)")
	}
	t.state.Unlock()
	if p == nil {
		return
	}

	select {
	case p.line <- line:
	case <-p.done:
	}
}

// Prompt prints the request and reads a button number or label.
// An empty line, EOF, or unknown answer dismisses the prompt.
func (t *Terminal) Prompt(ctx context.Context, req Request) (Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req = Normalize(req)
	p := &pendingAnswer{line: make(chan string), done: make(chan struct{})}

	t.state.Lock()
	fmt.Fprintf(t.out, "\n[%s] %s\n", req.TaskID, req.Action)
	if req.Reason != "" {
		fmt.Fprintf(t.out, "  reason: %s\n", req.Reason)
	}
	if req.Context != "" {
		fmt.Fprintf(t.out, "  context: %s\n", req.Context)
	}
	for i, b := range req.Buttons {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, b)
	}
	fmt.Fprint(t.out, "choice: ")
	t.cur = p
	t.state.Unlock()

	t.once.Do(func() { go t.readLines() })

	dismissed := Response{Index: len(req.Buttons)}
	var resp Response
	var err error
	withdrawn := false
	select {
	case <-ctx.Done():
		resp, err = dismissed, ctx.Err()
		withdrawn = true
	case <-t.eof:
		resp = dismissed
		t.state.Lock()
		if t.readErr != nil {
			resp, err = Response{}, fmt.Errorf("prompt: read answer: %w", t.readErr)
		}
		t.state.Unlock()
	case line := <-p.line:
		resp = Response{Index: parseChoice(strings.TrimSpace(line), req.Buttons)}
	}

	t.state.Lock()
	t.cur = nil
	close(p.done)
	if withdrawn {
		fmt.Fprintf(t.out, "\n(request %q withdrawn)\n", req.Action)
	}
	t.state.Unlock()

	return resp, err
}

func parseChoice(answer string, buttons []string) int {
	if answer == "" {
		return len(buttons)
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(buttons) {
			return n - 1
		}
		return len(buttons)
	}
	for i, b := range buttons {
		if strings.EqualFold(b, answer) {
			return i
		}
	}
	return len(buttons)
}
