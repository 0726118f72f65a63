// Package generator renders the machine-readable integration documents
// agents use to discover the control plane's ports and endpoints.
package generator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaseai/chaseai/internal/model"
)

const (
	appName        = "ChaseAI"
	appDescription = "Local control and orchestration system for AI agents"
	docVersion     = "1.0.0"
	docsBase       = "https://github.com/chaseai/chaseai/docs/"
)

// Endpoint describes one HTTP route.
type Endpoint struct {
	Path        string         `json:"path,omitempty" yaml:"path,omitempty"`
	Method      string         `json:"method" yaml:"method"`
	Description string         `json:"description" yaml:"description"`
	Request     map[string]any `json:"request,omitempty" yaml:"request,omitempty"`
	Response    map[string]any `json:"response,omitempty" yaml:"response,omitempty"`
}

// PortInfo describes one enabled binding.
type PortInfo struct {
	Port      uint16     `json:"port" yaml:"port"`
	Interface Interface  `json:"interface" yaml:"interface"`
	Role      string     `json:"role" yaml:"role"`
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	URL       string     `json:"url" yaml:"url"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Interface is PortInfo's interface block.
type Interface struct {
	Name      string `json:"name" yaml:"name"`
	IPAddress string `json:"ip_address" yaml:"ip_address"`
	Type      string `json:"type" yaml:"type"`
}

// Application identifies the producer.
type Application struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

// Document is the structure behind every format.
type Document struct {
	Version          string              `json:"version" yaml:"version"`
	Timestamp        string              `json:"timestamp" yaml:"timestamp"`
	Application      Application         `json:"application" yaml:"application"`
	VerificationMode string              `json:"verification_mode" yaml:"verification_mode"`
	Ports            []PortInfo          `json:"ports" yaml:"ports"`
	Endpoints        map[string]Endpoint `json:"endpoints" yaml:"endpoints"`
	Documentation    map[string]string   `json:"documentation" yaml:"documentation"`
}

// Generator renders Documents. The zero value is usable.
type Generator struct {
	Version string
	Now     func() time.Time
}

// New returns a Generator stamped with version.
func New(version string) *Generator {
	return &Generator{Version: version}
}

// Render produces cfg in format f.
func (g *Generator) Render(f Format, cfg *model.NetworkConfig) (string, error) {
	doc := g.Build(cfg)
	switch f {
	case FormatYAML:
		return renderYAML(doc)
	case FormatMarkdown:
		return renderMarkdown(doc, cfg), nil
	case FormatAgentRule:
		return renderAgentRule(doc, cfg), nil
	default:
		return renderJSON(doc)
	}
}

// Build assembles the Document. Only enabled bindings are listed.
func (g *Generator) Build(cfg *model.NetworkConfig) Document {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	version := g.Version
	if version == "" {
		version = "dev"
	}
	if cfg == nil {
		cfg = model.DefaultNetworkConfig()
	}
	mode := cfg.VerificationMode
	if mode == "" {
		mode = model.VerificationPort
	}

	ports := make([]PortInfo, 0)
	for _, b := range cfg.EnabledBindings() {
		ports = append(ports, PortInfo{
			Port: b.Port,
			Interface: Interface{
				Name:      b.Interface.Name,
				IPAddress: b.Interface.IPAddress,
				Type:      string(b.Interface.Type),
			},
			Role:      string(b.Role),
			Enabled:   b.Enabled,
			URL:       "http://" + b.Addr(),
			Endpoints: endpointsForRole(b.Role),
		})
	}

	return Document{
		Version:   docVersion,
		Timestamp: now().UTC().Format(time.RFC3339),
		Application: Application{
			Name:        appName,
			Version:     version,
			Description: appDescription,
		},
		VerificationMode: string(mode),
		Ports:            ports,
		Endpoints:        apiEndpoints(),
		Documentation: map[string]string{
			"getting_started":       docsBase + "ai-integration.md",
			"api_reference":         docsBase + "api-reference.md",
			"verification_workflow": docsBase + "verification-workflow.md",
		},
	}
}

func renderJSON(doc Document) (string, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(out), nil
}

func renderYAML(doc Document) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func apiEndpoints() map[string]Endpoint {
	return map[string]Endpoint{
		"/context": {
			Method:      "GET",
			Description: "Retrieve instruction context for this port",
			Response: map[string]any{
				"system":                "string",
				"role":                  "string",
				"base_instruction":      "string",
				"allowed_actions":       []string{"string"},
				"verification_required": "boolean",
			},
		},
		"/verify": {
			Method:      "POST",
			Description: "Request human verification for an action",
			Request: map[string]any{
				"action":     "string",
				"reason":     "string",
				"context":    "object (optional, task_id names the prompt)",
				"buttons":    "array of string (optional)",
				"session_id": "string (optional)",
			},
			Response: map[string]any{
				"status":          "approved|approved_session|rejected|cancelled",
				"verification_id": "string",
				"message":         "string (optional)",
			},
		},
		"/health": {
			Method:      "GET",
			Description: "Health check endpoint",
		},
		"/config": {
			Method:      "GET",
			Description: "Retrieve configuration (supports ?format=json|yaml|markdown|agent_rule)",
		},
	}
}

func endpointsForRole(role model.PortRole) []Endpoint {
	health := Endpoint{Path: "/health", Method: "GET", Description: "Health check"}
	switch role {
	case model.RoleInstruction:
		return []Endpoint{
			{Path: "/context", Method: "GET", Description: "Retrieve instruction context"},
			{Path: "/config", Method: "GET", Description: "Retrieve configuration"},
			health,
		}
	case model.RoleVerification:
		return []Endpoint{
			{Path: "/verify", Method: "POST", Description: "Request verification"},
			health,
		}
	default:
		return []Endpoint{health}
	}
}
