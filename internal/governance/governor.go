// Package governance composes the classifier, the approval gate, the
// executor and the audit chain into one governed call path.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/audit"
	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/model"
	"github.com/ppiankov/warden/internal/notify"
	"github.com/ppiankov/warden/internal/telemetry"
)

var tracer = telemetry.Tracer("governance")

// Classifier assigns a risk level to a tool call. *classify.Classifier
// satisfies it.
type Classifier interface {
	ClassifyRisk(ctx context.Context, toolName string, args map[string]any) model.Classification
}

// Gate opens approvals. *approval.Registry satisfies it.
type Gate interface {
	Create(toolName string, args map[string]any, c model.Classification, timeout time.Duration) (*approval.Ticket, error)
}

// Config wires a Governor.
type Config struct {
	Classifier Classifier
	Approvals  Gate
	Audit      *audit.Chain
	Executor   Executor
	Notifier   notify.Notifier // optional

	ApprovalTimeout time.Duration     // zero waits until resolved or cancelled
	RequireLevels   []model.RiskLevel // levels gated in addition to L2
	SessionID       string            // default session id, generated when empty

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Governor runs tool calls through classify, gate, execute and audit.
type Governor struct {
	cfg      Config
	boundary boundary
	logger   *slog.Logger
}

// New validates cfg and returns a Governor.
func New(cfg Config) (*Governor, error) {
	switch {
	case cfg.Classifier == nil:
		return nil, errors.New("governance: classifier is required")
	case cfg.Approvals == nil:
		return nil, errors.New("governance: approval registry is required")
	case cfg.Audit == nil:
		return nil, errors.New("governance: audit chain is required")
	case cfg.Executor == nil:
		return nil, errors.New("governance: executor is required")
	case cfg.ApprovalTimeout < 0:
		return nil, errors.New("governance: approval timeout must not be negative")
	}
	for _, l := range cfg.RequireLevels {
		if !l.Valid() {
			return nil, fmt.Errorf("governance: invalid approval level %d", int(l))
		}
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Governor{cfg: cfg, boundary: boundary{next: cfg.Executor}, logger: logger}, nil
}

// SessionID is the session recorded for requests that do not carry one.
func (g *Governor) SessionID() string { return g.cfg.SessionID }

// Request is one tool call plus the identity it is made on behalf of.
type Request struct {
	Call      model.ToolCall
	UserID    string
	SessionID string
	Usage     *model.Usage
}

// Decision reports what happened to a request.
type Decision struct {
	Classification model.Classification `json:"classification"`
	Action         string               `json:"action"`
	Approved       bool                 `json:"approved"`
	Nonce          string               `json:"nonce,omitempty"`
	Output         string               `json:"output,omitempty"`
	Entry          *audit.StoredEntry   `json:"entry,omitempty"`
}

// NeedsApproval reports whether calls at level l are gated.
func (g *Governor) NeedsApproval(l model.RiskLevel) bool {
	return model.RequiresApproval(l) || slices.Contains(g.cfg.RequireLevels, l)
}

// Classify returns the risk verdict for a call without running it.
func (g *Governor) Classify(ctx context.Context, call model.ToolCall) model.Classification {
	return g.cfg.Classifier.ClassifyRisk(ctx, call.Name, call.Args)
}

// Execute governs one call end to end. Refusals return *RefusedError.
// Every outcome is appended to the audit chain; an append failure is
// returned alongside the tool's result rather than hiding it.
func (g *Governor) Execute(ctx context.Context, req Request) (Decision, error) {
	ctx, span := tracer.Start(ctx, "governance.execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", req.Call.Name))

	c := g.Classify(ctx, req.Call)
	span.SetAttributes(attribute.String("risk.level", c.Level.String()))
	d := Decision{Classification: c}

	var runErr error
	switch {
	case model.Forbidden(c.Level):
		d.Action = audit.ActionBlocked
		runErr = &RefusedError{Level: c.Level, Reason: c.Reason, Status: audit.ActionBlocked}

	case g.NeedsApproval(c.Level):
		out, nonce, err := g.awaitApproval(ctx, req.Call, c)
		d.Nonce = nonce
		if err != nil {
			d.Action = audit.ActionCancelled
			runErr = &RefusedError{Level: c.Level, Reason: err.Error(), Status: d.Action, Err: err}
			break
		}
		if !out.Approved {
			d.Action = refusalAction(out.Status)
			reason := c.Reason
			if d.Action == audit.ActionCancelled {
				reason = out.Reason
			}
			runErr = &RefusedError{Level: c.Level, Reason: reason, Status: d.Action}
			break
		}
		d.Approved = true
		d.Output, runErr = g.run(ctx, req.Call, c)
		d.Action = executionAction(runErr)

	default:
		d.Output, runErr = g.run(ctx, req.Call, c)
		d.Action = executionAction(runErr)
	}

	g.cfg.Metrics.ToolCall(d.Action)
	g.logger.Info("tool call governed",
		"tool", req.Call.Name, "level", c.Level.String(), "action", d.Action, "nonce", d.Nonce)

	stored, auditErr := g.record(ctx, req, d, runErr)
	if auditErr == nil {
		d.Entry = &stored
	}

	err := errors.Join(runErr, auditErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, d.Action)
	}
	return d, err
}

func (g *Governor) awaitApproval(ctx context.Context, call model.ToolCall, c model.Classification) (approval.Outcome, string, error) {
	ctx, span := tracer.Start(ctx, "approval.wait")
	defer span.End()

	ticket, err := g.cfg.Approvals.Create(call.Name, call.Args, c, g.cfg.ApprovalTimeout)
	if err != nil {
		span.RecordError(err)
		return approval.Outcome{}, "", fmt.Errorf("create approval: %w", err)
	}
	nonce := ticket.Nonce()
	span.SetAttributes(attribute.String("approval.nonce", nonce))
	g.logger.Info("approval requested", "nonce", nonce, "tool", call.Name, "level", c.Level.String())

	if g.cfg.Notifier != nil {
		if err := g.cfg.Notifier.Notify(ctx, notify.PromptFor(ticket.Pending())); err != nil {
			g.logger.Warn("approval prompt not delivered", "nonce", nonce, "error", err)
		}
	}

	start := time.Now()
	out, err := ticket.Wait(ctx)
	if err != nil {
		out = approval.Outcome{Status: approval.StatusCancelled, Reason: fmt.Sprintf("caller gave up: %v", err)}
	}
	g.cfg.Metrics.ApprovalResolved(string(out.Status), time.Since(start))
	span.SetAttributes(attribute.String("approval.status", string(out.Status)))
	return out, nonce, nil
}

func (g *Governor) run(ctx context.Context, call model.ToolCall, c model.Classification) (string, error) {
	ctx, span := tracer.Start(ctx, "tool.execute")
	defer span.End()

	out, err := g.boundary.execute(ctx, call, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (g *Governor) record(ctx context.Context, req Request, d Decision, runErr error) (audit.StoredEntry, error) {
	_, span := tracer.Start(ctx, "audit.append")
	defer span.End()

	args, err := audit.EncodeArgs(req.Call.Args)
	if err != nil {
		return audit.StoredEntry{}, fmt.Errorf("audit: encode args: %w", err)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = g.cfg.SessionID
	}

	stored, err := g.cfg.Audit.Append(audit.AuditEntry{
		Action:        d.Action,
		ToolName:      req.Call.Name,
		ToolArgs:      args,
		RiskLevel:     d.Classification.Level,
		Reason:        d.Classification.Reason,
		Deterministic: d.Classification.Deterministic,
		Approved:      d.Approved,
		Result:        resultText(d, runErr),
		UserID:        req.UserID,
		SessionID:     sessionID,
		Usage:         req.Usage,
	})
	g.cfg.Metrics.AuditAppend(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		g.logger.Error("audit append failed", "tool", req.Call.Name, "action", d.Action, "error", err)
		return audit.StoredEntry{}, fmt.Errorf("audit append: %w", err)
	}
	return stored, nil
}

func resultText(d Decision, runErr error) string {
	switch {
	case runErr == nil:
		return d.Output
	case d.Output == "":
		return runErr.Error()
	default:
		return d.Output + "\n" + runErr.Error()
	}
}

func refusalAction(s approval.Status) string {
	switch s {
	case approval.StatusTimedOut:
		return audit.ActionTimedOut
	case approval.StatusCancelled:
		return audit.ActionCancelled
	default:
		return audit.ActionDenied
	}
}

func executionAction(err error) string {
	switch {
	case err == nil:
		return audit.ActionExecuted
	case errors.Is(err, ErrForbidden):
		return audit.ActionBlocked
	default:
		return audit.ActionExecutionFailed
	}
}
