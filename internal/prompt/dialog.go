package prompt

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Dialog shows a native dialog through osascript. Only macOS is supported;
// elsewhere it declines every request.
type Dialog struct {
	goos    string
	command func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDialog returns a Dialog for the running platform.
func NewDialog() *Dialog {
	return &Dialog{
		goos: runtime.GOOS,
		command: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Prompt runs the dialog. Cancelling the dialog yields index len(buttons).
func (d *Dialog) Prompt(ctx context.Context, req Request) (Response, error) {
	req = Normalize(req)
	if d.goos != "darwin" {
		return Response{Index: 0, Message: "Verification not supported on this platform"}, nil
	}

	out, err := d.command(ctx, "osascript", "-e", dialogScript(req))
	if err != nil {
		if ctx.Err() != nil {
			return Response{Index: len(req.Buttons)}, ctx.Err()
		}
		if _, ok := err.(*exec.ExitError); ok {
			// osascript exits non-zero when the user presses Cancel.
			return Response{Index: len(req.Buttons)}, nil
		}
		return Response{}, fmt.Errorf("prompt: osascript: %w", err)
	}

	index := selectedIndex(string(out), req.Buttons)
	resp := Response{Index: index}
	if index >= 0 && index < len(req.Buttons) {
		resp.Message = fmt.Sprintf("User selected '%s' via ChaseAI", req.Buttons[index])
	}
	return resp, nil
}

func dialogScript(req Request) string {
	body := req.Action
	if req.Reason != "" {
		body += "\n\nReason: " + req.Reason
	}
	if req.Context != "" {
		body += "\n\nContext: " + req.Context
	}

	quoted := make([]string, len(req.Buttons))
	for i, b := range req.Buttons {
		quoted[i] = appleString(b)
	}

	return fmt.Sprintf(
		"display dialog %s with title %s buttons {%s} default button %d with icon caution",
		appleString(body), appleString("ChaseAI "+req.TaskID), strings.Join(quoted, ", "), len(req.Buttons),
	)
}

func appleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// selectedIndex parses "button returned:<label>" from osascript output.
func selectedIndex(out string, buttons []string) int {
	const prefix = "button returned:"
	i := strings.Index(out, prefix)
	if i < 0 {
		return len(buttons)
	}
	label := strings.TrimSpace(out[i+len(prefix):])
	if j := strings.IndexByte(label, ','); j >= 0 {
		label = label[:j]
	}
	for k, b := range buttons {
		if b == label {
			return k
		}
	}
	return len(buttons)
}
