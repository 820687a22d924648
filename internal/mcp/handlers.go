package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/audit"
	"github.com/ppiankov/warden/internal/governance"
	"github.com/ppiankov/warden/internal/model"
)

// --- Input/Output types ---

// ExecInput defines parameters for the warden_exec tool.
type ExecInput struct {
	Command string   `json:"command,omitempty" jsonschema:"shell command line to run"`
	Argv    []string `json:"argv,omitempty" jsonschema:"program and arguments, used instead of command to avoid shell quoting"`
}

// ExecOutput contains the command result or refusal details.
type ExecOutput struct {
	Output   string `json:"output,omitempty"`
	Action   string `json:"action"`
	Level    string `json:"level"`
	Reason   string `json:"reason"`
	Nonce    string `json:"nonce,omitempty"`
	Approved bool   `json:"approved,omitempty"`
	Refused  bool   `json:"refused,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckInput defines parameters for the warden_check tool.
type CheckInput struct {
	Tool string         `json:"tool" jsonschema:"tool name, e.g. shell, read_file, http_request"`
	Args map[string]any `json:"args,omitempty" jsonschema:"tool arguments"`
}

// CheckOutput contains the classification.
type CheckOutput struct {
	Level            string `json:"level"`
	Label            string `json:"label"`
	Reason           string `json:"reason"`
	Deterministic    bool   `json:"deterministic"`
	RequiresApproval bool   `json:"requires_approval"`
	Forbidden        bool   `json:"forbidden"`
}

// ResolveInput defines parameters for the warden_resolve tool.
type ResolveInput struct {
	Nonce   string `json:"nonce" jsonschema:"nonce from the approval prompt"`
	Approve bool   `json:"approve" jsonschema:"true to approve, false to deny"`
}

// ResolveOutput reports whether the answer was accepted.
type ResolveOutput struct {
	Nonce    string `json:"nonce"`
	Resolved bool   `json:"resolved"`
	Approved bool   `json:"approved"`
}

// PendingInput is empty, no parameters needed.
type PendingInput struct{}

// PendingOutput lists all pending approvals.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	Nonce     string `json:"nonce"`
	Tool      string `json:"tool"`
	Args      string `json:"args,omitempty"`
	Level     string `json:"level"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// VerifyInput defines parameters for the warden_verify tool.
type VerifyInput struct {
	Date string `json:"date,omitempty" jsonschema:"day to verify as YYYY-MM-DD (UTC), defaults to today"`
}

// VerifyOutput is the chain verification result.
type VerifyOutput struct {
	Date        string `json:"date"`
	Valid       bool   `json:"valid"`
	Entries     int    `json:"entries"`
	FirstBroken *int   `json:"first_broken,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// --- Handlers ---

func (s *Server) handleExec(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	args := map[string]any{}
	switch {
	case input.Command != "":
		args["command"] = input.Command
	case len(input.Argv) > 0:
		args["argv"] = input.Argv
	default:
		return nil, ExecOutput{}, errors.New("command or argv is required")
	}

	d, err := s.gov.Execute(ctx, governance.Request{
		Call:   model.ToolCall{Name: "shell", Args: args},
		UserID: s.cfg.UserID,
	})
	out := ExecOutput{
		Output:   d.Output,
		Action:   d.Action,
		Level:    d.Classification.Level.String(),
		Reason:   d.Classification.Reason,
		Nonce:    d.Nonce,
		Approved: d.Approved,
	}
	if err != nil {
		var refused *governance.RefusedError
		out.Refused = errors.As(err, &refused)
		out.Error = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Tool == "" {
		return nil, CheckOutput{}, errors.New("tool is required")
	}
	c := s.gov.Classify(ctx, model.ToolCall{Name: input.Tool, Args: input.Args})
	return nil, CheckOutput{
		Level:            c.Level.String(),
		Label:            c.Level.Label(),
		Reason:           c.Reason,
		Deterministic:    c.Deterministic,
		RequiresApproval: s.gov.NeedsApproval(c.Level),
		Forbidden:        model.Forbidden(c.Level),
	}, nil
}

func (s *Server) handleResolve(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	nonce := approval.NormalizeNonce(input.Nonce)
	if nonce == "" {
		return nil, ResolveOutput{}, errors.New("nonce is required")
	}
	out := ResolveOutput{Nonce: nonce, Approved: input.Approve}
	out.Resolved = s.approvals.Resolve(nonce, input.Approve)
	if !out.Resolved {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	s.logger.Info("approval resolved over mcp", "nonce", nonce, "approved", input.Approve)
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list := s.approvals.List()
	items := make([]PendingItem, 0, len(list))
	for _, p := range list {
		item := PendingItem{
			Nonce:     p.Nonce,
			Tool:      p.ToolName,
			Args:      model.DescribeArgs(p.ToolArgs),
			Level:     p.Classification.Level.String(),
			Reason:    p.Classification.Reason,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		}
		if p.ExpiresAt != nil {
			item.ExpiresAt = p.ExpiresAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return nil, PendingOutput{Approvals: items}, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	date := input.Date
	if date == "" {
		date = time.Now().UTC().Format(audit.DateLayout)
	}
	if _, err := time.Parse(audit.DateLayout, date); err != nil {
		return nil, VerifyOutput{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}

	res, err := audit.Verify(s.cfg.AuditDir, date)
	if err != nil {
		return nil, VerifyOutput{}, err
	}
	out := VerifyOutput{
		Date:        res.Date,
		Valid:       res.Valid,
		Entries:     res.Entries,
		FirstBroken: res.FirstBroken,
		Reason:      res.Reason,
	}
	if !res.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}
