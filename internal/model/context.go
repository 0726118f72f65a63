package model

import (
	"regexp"
	"strings"

	"github.com/chaseai/chaseai/internal/errs"
)

// actionPattern is the allowed shape of an action name.
var actionPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// InstructionContext is the agent-facing instruction document served at /context.
type InstructionContext struct {
	System               string   `json:"system" yaml:"system"`
	Role                 string   `json:"role" yaml:"role"`
	BaseInstruction      string   `json:"base_instruction" yaml:"base_instruction"`
	AllowedActions       []string `json:"allowed_actions" yaml:"allowed_actions"`
	VerificationRequired bool     `json:"verification_required" yaml:"verification_required"`
}

// Validate returns a validation error describing the first violated constraint.
func (c InstructionContext) Validate() error {
	if strings.TrimSpace(c.System) == "" {
		return errs.New(errs.CodeValidation, "system identifier cannot be empty")
	}
	if strings.TrimSpace(c.Role) == "" {
		return errs.New(errs.CodeValidation, "agent role cannot be empty")
	}
	if strings.TrimSpace(c.BaseInstruction) == "" {
		return errs.New(errs.CodeValidation, "base instruction cannot be empty")
	}
	if len(c.AllowedActions) == 0 {
		return errs.New(errs.CodeValidation, "allowed actions list cannot be empty")
	}
	for _, a := range c.AllowedActions {
		if !actionPattern.MatchString(a) {
			return errs.Newf(errs.CodeValidation,
				"invalid action name %q: must start with a lowercase letter and contain only lowercase letters, numbers, and hyphens", a)
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c InstructionContext) Clone() InstructionContext {
	c.AllowedActions = append([]string(nil), c.AllowedActions...)
	return c
}

// Equal reports field-wise equality.
func (c InstructionContext) Equal(o InstructionContext) bool {
	if c.System != o.System || c.Role != o.Role || c.BaseInstruction != o.BaseInstruction ||
		c.VerificationRequired != o.VerificationRequired || len(c.AllowedActions) != len(o.AllowedActions) {
		return false
	}
	for i := range c.AllowedActions {
		if c.AllowedActions[i] != o.AllowedActions[i] {
			return false
		}
	}
	return true
}

// PortContext pairs a port with its bound context.
type PortContext struct {
	Port    uint16             `json:"port"`
	Context InstructionContext `json:"context"`
}
