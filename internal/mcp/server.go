// Package mcp exposes instruction contexts and verification to agents
// over the Model Context Protocol on stdio.
package mcp

import (
	"context"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/model"
)

// Contexts is the read side of the Context Manager.
type Contexts interface {
	GetContext(port uint16) (model.InstructionContext, bool)
	ListContexts() []model.PortContext
}

// Config holds MCP server dependencies.
type Config struct {
	Contexts Contexts
	Renderer *generator.Generator
	// Network returns the current network configuration.
	Network func() *model.NetworkConfig
	Version string
	// HTTPClient posts verification requests to the running control plane.
	// No timeout: the human may take as long as they need.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Server wraps the MCP SDK server with chaseai tools.
type Server struct {
	mcpServer *mcpsdk.Server
	contexts  Contexts
	gen       *generator.Generator
	network   func() *model.NetworkConfig
	client    *http.Client
	log       *zap.Logger
}

// New creates an MCP server with all tools registered.
func New(cfg Config) *Server {
	s := &Server{
		contexts: cfg.Contexts,
		gen:      cfg.Renderer,
		network:  cfg.Network,
		client:   cfg.HTTPClient,
		log:      cfg.Logger,
	}
	if s.gen == nil {
		s.gen = generator.New(cfg.Version)
	}
	if s.network == nil {
		s.network = model.DefaultNetworkConfig
	}
	if s.client == nil {
		s.client = &http.Client{Transport: &http.Transport{IdleConnTimeout: 30 * time.Second}}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "chaseai",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves on stdio. Blocks until ctx is cancelled or the client hangs up.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all chaseai tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaseai_list_contexts",
		Description: "List every port that has an instruction context, with the context.",
	}, s.handleListContexts)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaseai_get_context",
		Description: "Get the instruction context (system, role, base instruction, allowed actions) bound to a port.",
	}, s.handleGetContext)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaseai_get_config",
		Description: "Render the agent integration document in json, yaml, markdown, or agent_rule format.",
	}, s.handleGetConfig)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaseai_verify",
		Description: "Ask the human to approve a sensitive action. Blocks until they answer. Returns rejected, approved, approved_session, or cancelled.",
	}, s.handleVerify)
}
