package governance

import (
	"context"

	"github.com/ppiankov/warden/internal/audit"
	"github.com/ppiankov/warden/internal/classify"
	"github.com/ppiankov/warden/internal/model"
)

// Executor runs an approved tool call and returns its textual result.
type Executor interface {
	Execute(ctx context.Context, call model.ToolCall) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call model.ToolCall) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	return f(ctx, call)
}

// boundary is the last check before a tool runs. It refuses L3 on the
// level it was handed and on its own deterministic re-classification, so
// neither a gate bug nor a forged approval can reach the executor.
type boundary struct {
	next Executor
}

func (b boundary) execute(ctx context.Context, call model.ToolCall, c model.Classification) (string, error) {
	if model.Forbidden(c.Level) {
		return "", &RefusedError{Level: c.Level, Reason: c.Reason, Status: audit.ActionBlocked}
	}
	if again, ok := classify.ClassifyDeterministic(call.Name, call.Args); ok && model.Forbidden(again.Level) {
		return "", &RefusedError{Level: again.Level, Reason: again.Reason, Status: audit.ActionBlocked}
	}
	return b.next.Execute(ctx, call)
}
