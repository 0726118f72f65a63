// Package prompt asks a human to pick one of several buttons for a
// verification request.
package prompt

import (
	"context"
	"errors"
)

// DefaultTaskID labels prompts whose caller gave no task id.
const DefaultTaskID = "Verification"

// DefaultButtons are offered when a verification request names none.
var DefaultButtons = []string{"Reject", "Approve Once", "Approve Session"}

// ErrUnsupported is returned by prompters that cannot run on this platform.
var ErrUnsupported = errors.New("prompt: not supported on this platform")

// Request describes one question put to the human.
type Request struct {
	TaskID  string
	Action  string
	Reason  string
	Context string
	Buttons []string
}

// Response carries the selected button index and an optional message.
// An Index outside [0, len(Buttons)) means the prompt was dismissed.
type Response struct {
	Index   int
	Message string
}

// Prompter blocks until the human answers or ctx is done.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Prompter interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Prompt calls f.
func (f Func) Prompt(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Static always answers with the same index.
type Static struct {
	Index   int
	Message string
}

// Prompt returns the fixed response.
func (s Static) Prompt(ctx context.Context, _ Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{Index: s.Index, Message: s.Message}, nil
}

// Normalize fills the default task id and buttons.
func Normalize(req Request) Request {
	if req.TaskID == "" {
		req.TaskID = DefaultTaskID
	}
	if len(req.Buttons) == 0 {
		req.Buttons = append([]string(nil), DefaultButtons...)
	}
	return req
}

// New returns the prompter registered under name: "dialog", "terminal",
// or "queue". The queue prompter needs dir.
func New(name, queueDir string) (Prompter, error) {
	switch name {
	case "", "dialog":
		return NewDialog(), nil
	case "terminal":
		return NewTerminal(nil, nil), nil
	case "queue":
		return NewQueue(queueDir)
	default:
		return nil, errors.New("prompt: unknown prompter " + name)
	}
}
