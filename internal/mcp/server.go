// Package mcp exposes governed execution to agents over the Model Context
// Protocol (stdio transport).
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/governance"
)

// Config holds MCP server configuration.
type Config struct {
	AuditDir string
	UserID   string // recorded on every audit entry
	Version  string
}

// Server wraps the MCP SDK server around a Governor.
type Server struct {
	mcpServer *mcpsdk.Server
	gov       *governance.Governor
	approvals *approval.Registry
	cfg       Config
	logger    *slog.Logger
}

// New creates an MCP server with all warden tools registered.
func New(cfg Config, gov *governance.Governor, approvals *approval.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{gov: gov, approvals: approvals, cfg: cfg, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "warden",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled or the client disconnects; pending approvals opened by this
// session are rejected on the way out.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if n := s.approvals.RejectAll("mcp session ended"); n > 0 {
			s.logger.Warn("rejected pending approvals at session end", "count", n)
		}
	}()
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all warden tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_exec",
		Description: "Run a shell command under warden governance. Risky commands wait for human approval; forbidden ones are refused with the reason.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_check",
		Description: "Classify a tool call (L0 read-only to L3 forbidden) without running it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_resolve",
		Description: "Approve or deny a pending approval by its nonce.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_pending",
		Description: "List tool calls waiting for human approval.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_verify",
		Description: "Verify the hash chain of one day of the audit log.",
	}, s.handleVerify)
}
