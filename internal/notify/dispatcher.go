package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ppiankov/warden/internal/metrics"
)

// Dispatcher fans a prompt out to every notifier without blocking the
// caller. Delivery failures are logged and counted, never returned: the
// approval stays pending and can still be answered another way.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Returns nil if there are no notifiers
// (a nil Dispatcher is a valid no-op).
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, notifiers ...Notifier) *Dispatcher {
	if len(notifiers) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{notifiers: notifiers, logger: logger, metrics: m}
}

// Notify starts delivery to every notifier and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, p Prompt) error {
	if d == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := n.Notify(ctx, p); err != nil {
				name := notifierName(n)
				d.logger.Warn("approval prompt delivery failed",
					"notifier", name, "nonce", p.Nonce, "error", err)
				d.metrics.NotifyError(name)
			}
		}()
	}
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func notifierName(n Notifier) string {
	if named, ok := n.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", n)
}
