package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/server"
)

// --- Input/Output types ---

// ListContextsInput takes no parameters.
type ListContextsInput struct{}

// ListContextsOutput lists contexts sorted by port.
type ListContextsOutput struct {
	Contexts []model.PortContext `json:"contexts"`
}

// GetContextInput selects a port.
type GetContextInput struct {
	Port uint16 `json:"port" jsonschema:"port the context is bound to"`
}

// GetContextOutput holds one context.
type GetContextOutput struct {
	Port    uint16                   `json:"port"`
	Context model.InstructionContext `json:"context"`
}

// GetConfigInput selects an output format.
type GetConfigInput struct {
	Format string `json:"format,omitempty" jsonschema:"json, yaml, markdown, or agent_rule (default json)"`
}

// GetConfigOutput holds the rendered document.
type GetConfigOutput struct {
	Format   string `json:"format"`
	Document string `json:"document"`
}

// VerifyInput mirrors the POST /verify body.
type VerifyInput struct {
	Action  string         `json:"action" jsonschema:"short name of the action needing approval"`
	Reason  string         `json:"reason" jsonschema:"why the action is needed"`
	Context map[string]any `json:"context,omitempty" jsonschema:"extra context shown to the human; task_id labels the prompt"`
	Buttons []string       `json:"buttons,omitempty" jsonschema:"custom button labels"`
}

// VerifyOutput is the human's decision.
type VerifyOutput = server.VerifyResponse

// --- Handlers ---

func (s *Server) handleListContexts(ctx context.Context, req *mcpsdk.CallToolRequest, input ListContextsInput) (*mcpsdk.CallToolResult, ListContextsOutput, error) {
	list := s.contexts.ListContexts()
	if list == nil {
		list = []model.PortContext{}
	}
	return nil, ListContextsOutput{Contexts: list}, nil
}

func (s *Server) handleGetContext(ctx context.Context, req *mcpsdk.CallToolRequest, input GetContextInput) (*mcpsdk.CallToolResult, GetContextOutput, error) {
	c, ok := s.contexts.GetContext(input.Port)
	if !ok {
		return nil, GetContextOutput{}, errs.Newf(errs.CodeNotFound, "no context bound to port %d", input.Port)
	}
	return nil, GetContextOutput{Port: input.Port, Context: c}, nil
}

func (s *Server) handleGetConfig(ctx context.Context, req *mcpsdk.CallToolRequest, input GetConfigInput) (*mcpsdk.CallToolResult, GetConfigOutput, error) {
	format := generator.ParseFormat(input.Format)
	doc, err := s.gen.Render(format, s.network())
	if err != nil {
		return nil, GetConfigOutput{}, err
	}
	return nil, GetConfigOutput{Format: format.String(), Document: doc}, nil
}

// handleVerify forwards to the first enabled Verification port so the
// running control plane owns the prompt and any session it mints.
func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	b, ok := s.network().FirstEnabled(model.RoleVerification)
	if !ok {
		return nil, VerifyOutput{}, errs.New(errs.CodeConfiguration, "no enabled verification port; run `chaseai ports enable <port>`")
	}

	vreq := server.VerifyRequest{
		Action:  input.Action,
		Reason:  input.Reason,
		Buttons: input.Buttons,
	}
	if len(input.Context) > 0 {
		raw, err := json.Marshal(input.Context)
		if err != nil {
			return nil, VerifyOutput{}, fmt.Errorf("encode verify context: %w", err)
		}
		vreq.Context = raw
	}

	body, err := json.Marshal(vreq)
	if err != nil {
		return nil, VerifyOutput{}, fmt.Errorf("encode verify request: %w", err)
	}

	url := "http://" + b.Addr() + "/verify"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, VerifyOutput{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	s.log.Debug("forwarding verification", zap.String("url", url), zap.String("action", input.Action))
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, VerifyOutput{}, fmt.Errorf("verification port %d unreachable: %w", b.Port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&payload)
		return nil, VerifyOutput{}, fmt.Errorf("verify failed (%d %s): %s", resp.StatusCode, payload.Error.Code, payload.Error.Message)
	}

	var out VerifyOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, VerifyOutput{}, fmt.Errorf("decode verify response: %w", err)
	}
	return nil, out, nil
}
