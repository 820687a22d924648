// Package classify assigns risk levels to proposed tool calls: a
// deterministic rule table first, a local model only when no rule applies.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/model"
	"github.com/ppiankov/warden/internal/telemetry"
)

var tracer = telemetry.Tracer("classify")

// DefaultFailureLevel is used when the model fallback cannot produce a verdict.
const DefaultFailureLevel = model.L2

// Config is the hot-swappable part of a Classifier.
type Config struct {
	Rules        *RuleSet
	Model        *ModelConfig // nil disables the model fallback
	FailureLevel model.RiskLevel
}

func (c Config) validate() error {
	if !c.FailureLevel.Valid() || c.FailureLevel < model.L2 {
		return fmt.Errorf("failure level must be L2 or L3, got %s", c.FailureLevel)
	}
	if c.Model != nil && c.Model.URL == "" {
		return errors.New("model fallback configured without url")
	}
	return nil
}

// Classifier is safe for concurrent use.
type Classifier struct {
	mu      sync.RWMutex
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a classifier. logger and m may be nil.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Classifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{cfg: cfg, logger: logger, metrics: m}, nil
}

// Reconfigure swaps rules, model and failure level atomically.
func (c *Classifier) Reconfigure(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

func (c *Classifier) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ClassifyRisk classifies one tool call. The model is consulted only when no
// deterministic rule applies; any model failure degrades to the failure level.
func (c *Classifier) ClassifyRisk(ctx context.Context, toolName string, args map[string]any) model.Classification {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "classify.risk",
		trace.WithAttributes(attribute.String("tool.name", toolName)))
	defer span.End()

	cfg := c.config()

	if cl, ok := cfg.Rules.Classify(toolName, args); ok {
		c.finish(span, cl, "rule", start)
		return cl
	}

	if cfg.Model == nil {
		cl := model.Classification{
			Level:  cfg.FailureLevel,
			Reason: "no rule matched and no classification model is configured",
		}
		c.logger.Info("no rule matched, using failure level", "tool", toolName, "level", cl.Level)
		c.finish(span, cl, "failure", start)
		return cl
	}

	cl, usage, err := ClassifyWithLLM(ctx, toolName, args, *cfg.Model)
	c.metrics.ModelTokens(usage.InputTokens, usage.OutputTokens)
	if err != nil {
		reason := failureKind(err)
		c.metrics.ClassifierFailure(reason)
		c.logger.Warn("model classification failed",
			"tool", toolName,
			"failure", reason,
			"error", err,
			"level", cfg.FailureLevel,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "model classification failed")
		cl = model.Classification{
			Level:  cfg.FailureLevel,
			Reason: fmt.Sprintf("model classification failed (%s)", reason),
		}
		c.finish(span, cl, "failure", start)
		return cl
	}

	c.logger.Debug("model classified call",
		"tool", toolName,
		"level", cl.Level,
		"reason", cl.Reason,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	c.finish(span, cl, "model", start)
	return cl
}

func (c *Classifier) finish(span trace.Span, cl model.Classification, source string, start time.Time) {
	span.SetAttributes(
		attribute.String("risk.level", cl.Level.String()),
		attribute.String("risk.source", source),
		attribute.Bool("risk.deterministic", cl.Deterministic),
	)
	c.metrics.ObserveClassification(cl.Level.String(), source, time.Since(start))
}

// failureKind buckets a model error for metrics and logs.
func failureKind(err error) string {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.Is(err, ErrUnparseableReply):
		return "unparseable"
	default:
		return "unreachable"
	}
}
