// Package notify delivers approval prompts to humans: webhooks for chat
// relays and an interactive console approver for local use.
package notify

import (
	"context"
	"time"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/model"
)

// Prompt is what an approver sees. The nonce is the only handle needed to
// answer it.
type Prompt struct {
	Nonce          string               `json:"nonce"`
	ToolName       string               `json:"tool_name"`
	ToolArgs       map[string]any       `json:"tool_args,omitempty"`
	Classification model.Classification `json:"classification"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
	// Resolved, when set, is closed once the approval is settled elsewhere.
	Resolved <-chan struct{} `json:"-"`
}

// PromptFor builds the prompt for a pending approval.
func PromptFor(p approval.PendingApproval) Prompt {
	return Prompt{
		Nonce:          p.Nonce,
		ToolName:       p.ToolName,
		ToolArgs:       p.ToolArgs,
		Classification: p.Classification,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		Resolved:       p.Resolved,
	}
}

// Notifier renders a prompt somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, p Prompt) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, p Prompt) error

func (f Func) Notify(ctx context.Context, p Prompt) error { return f(ctx, p) }

// Resolver answers a prompt by nonce. *approval.Registry satisfies it.
type Resolver interface {
	Resolve(nonce string, approved bool) bool
}
