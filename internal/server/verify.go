package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/audit"
	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/prompt"
)

// Verification statuses returned by POST /verify.
const (
	StatusRejected        = audit.DecisionRejected
	StatusApproved        = audit.DecisionApproved
	StatusApprovedSession = audit.DecisionApprovedSession
	StatusCancelled       = audit.DecisionCancelled
)

// maxVerifyBody caps the request body size.
const maxVerifyBody = 1 << 20

// VerifyRequest is the POST /verify payload.
type VerifyRequest struct {
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Context   json.RawMessage `json:"context,omitempty"`
	Buttons   []string        `json:"buttons,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// VerifyResponse is the POST /verify result.
type VerifyResponse struct {
	Status         string `json:"status"`
	VerificationID string `json:"verification_id"`
	Message        string `json:"message,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.CodeValidation, err, "malformed verification request"))
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, errs.New(errs.CodeValidation, "action must not be empty"))
		return
	}

	writeJSON(w, http.StatusOK, s.verify(r.Context(), req))
}

// verify prompts the human and maps the answer to a status. Only the
// calling goroutine blocks; ctx ends the wait if the caller disconnects.
func (s *Server) verify(ctx context.Context, req VerifyRequest) VerifyResponse {
	if req.SessionID != "" {
		// Sessions are tracked but never short-circuit the prompt.
		s.log.Debug("verify: caller session id ignored", zap.String("session_id", req.SessionID))
	}

	preq := prompt.Normalize(prompt.Request{
		TaskID:  taskID(req.Context),
		Action:  req.Action,
		Reason:  req.Reason,
		Context: renderContext(req.Context),
		Buttons: req.Buttons,
	})

	resp := VerifyResponse{Status: StatusCancelled}
	button := ""

	if s.deps.Prompter == nil {
		resp.Message = "no approval prompter configured"
	} else if answer, err := s.deps.Prompter.Prompt(ctx, preq); err != nil {
		s.log.Warn("verify: prompt failed", zap.String("action", req.Action), zap.Error(err))
		resp.Message = err.Error()
	} else {
		resp.Message = answer.Message
		if answer.Index >= 0 && answer.Index < len(preq.Buttons) {
			button = preq.Buttons[answer.Index]
			resp.Status = statusForButton(button)
		}
	}

	if resp.Status == StatusApprovedSession {
		sess := s.deps.Contexts.CreateSession([]string{req.Action})
		resp.VerificationID = sess.ID
	} else {
		resp.VerificationID = uuid.NewString()
	}

	s.log.Info("verification decided",
		zap.String("task_id", preq.TaskID),
		zap.String("action", req.Action),
		zap.String("status", resp.Status),
		zap.String("verification_id", resp.VerificationID))

	if s.deps.Audit != nil {
		err := s.deps.Audit.Record(audit.Entry{
			Port:           s.binding.Port,
			TaskID:         preq.TaskID,
			Action:         req.Action,
			Reason:         req.Reason,
			Decision:       resp.Status,
			VerificationID: resp.VerificationID,
			Button:         button,
			Message:        resp.Message,
		})
		if err != nil {
			s.log.Error("verify: audit record failed", zap.Error(err))
		}
	}

	return resp
}

// statusForButton maps a selected label to a status, case-insensitively.
func statusForButton(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "session"):
		return StatusApprovedSession
	case strings.Contains(l, "approve"):
		return StatusApproved
	default:
		return StatusRejected
	}
}

// taskID returns context.task_id when it is a non-empty string.
func taskID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return prompt.DefaultTaskID
	}
	var obj struct {
		TaskID any `json:"task_id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return prompt.DefaultTaskID
	}
	if id, ok := obj.TaskID.(string); ok && id != "" {
		return id
	}
	return prompt.DefaultTaskID
}

// renderContext returns the context as shown to the human: strings
// verbatim, anything else as compact JSON.
func renderContext(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}
