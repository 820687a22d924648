package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/model"
)

func testPrompt() Prompt {
	exp := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	return Prompt{
		Nonce:          "abcdefghijklmnop",
		ToolName:       "shell",
		ToolArgs:       map[string]any{"command": "rm -rf build"},
		Classification: model.Classification{Level: model.L2, Reason: "recursive delete"},
		CreatedAt:      exp.Add(-5 * time.Minute),
		ExpiresAt:      &exp,
	}
}

func fastWebhook(t *testing.T, cfg WebhookConfig) *Webhook {
	t.Helper()
	w, err := NewWebhook(cfg)
	require.NoError(t, err)
	w.backoff = time.Millisecond
	return w
}

func TestWebhookGenericPayload(t *testing.T) {
	var got map[string]any
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := fastWebhook(t, WebhookConfig{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}})
	require.NoError(t, wh.Notify(context.Background(), testPrompt()))

	assert.Equal(t, "secret", header)
	assert.Equal(t, "approval_requested", got["type"])
	assert.Equal(t, "abcdefghijklmnop", got["nonce"])
	assert.Equal(t, "shell", got["tool_name"])
	cls := got["classification"].(map[string]any)
	assert.Equal(t, "L2", cls["level"])
}

func TestWebhookSlackPayload(t *testing.T) {
	body, err := FormatPayload("slack", testPrompt())
	require.NoError(t, err)
	s := string(body)
	assert.Contains(t, s, "approval required (L2)")
	assert.Contains(t, s, "approve abcdefghijklmnop")
	assert.Contains(t, s, "command=rm -rf build")
	assert.Contains(t, s, "2026-03-01T12:05:00Z")
}

func TestUnknownFormatRejected(t *testing.T) {
	_, err := NewWebhook(WebhookConfig{URL: "http://example.invalid", Format: "pagerduty"})
	require.Error(t, err)

	_, err = NewWebhook(WebhookConfig{})
	require.Error(t, err)
}

func TestWebhookRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, fastWebhook(t, WebhookConfig{URL: srv.URL}).Notify(context.Background(), testPrompt()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := fastWebhook(t, WebhookConfig{URL: srv.URL}).Notify(context.Background(), testPrompt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestWebhookNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := fastWebhook(t, WebhookConfig{URL: srv.URL}).Notify(context.Background(), testPrompt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcherFansOut(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(name string) Notifier {
		return Func(func(_ context.Context, p Prompt) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+p.Nonce)
			return nil
		})
	}

	d := NewDispatcher(nil, nil, record("a"), record("b"))
	require.NoError(t, d.Notify(context.Background(), testPrompt()))
	d.Wait()

	assert.ElementsMatch(t, []string{"a:abcdefghijklmnop", "b:abcdefghijklmnop"}, seen)
}

func TestDispatcherCountsFailures(t *testing.T) {
	m := metrics.New()
	failing := Func(func(context.Context, Prompt) error { return errors.New("boom") })
	d := NewDispatcher(slog.New(slog.DiscardHandler), m, failing)

	require.NoError(t, d.Notify(context.Background(), testPrompt()))
	d.Wait()

	expected := `
# HELP warden_notify_errors_total Approval notifications that could not be delivered.
# TYPE warden_notify_errors_total counter
warden_notify_errors_total{notifier="notify.Func"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "warden_notify_errors_total"))
}

func TestDispatcherDetachedFromCallerContext(t *testing.T) {
	got := make(chan error, 1)
	n := Func(func(ctx context.Context, _ Prompt) error {
		got <- ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(nil, nil, n)
	require.NoError(t, d.Notify(ctx, testPrompt()))
	d.Wait()
	assert.NoError(t, <-got)
}

func TestNilDispatcher(t *testing.T) {
	d := NewDispatcher(nil, nil)
	assert.Nil(t, d)
	assert.NoError(t, d.Notify(context.Background(), testPrompt()))
	d.Wait()
}

func TestPromptForPending(t *testing.T) {
	r := approval.NewRegistry()
	c := model.Classification{Level: model.L2, Reason: "x"}
	ticket, err := r.Create("shell", map[string]any{"command": "reboot"}, c, time.Minute)
	require.NoError(t, err)
	defer r.RejectAll("test done")

	p := PromptFor(ticket.Pending())
	assert.Equal(t, ticket.Nonce(), p.Nonce)
	assert.Equal(t, "shell", p.ToolName)
	assert.Equal(t, c, p.Classification)
	require.NotNil(t, p.ExpiresAt)
}

func consolePrompt() Prompt {
	p := testPrompt()
	exp := time.Now().Add(time.Hour)
	p.ExpiresAt = &exp
	return p
}

type recordingResolver struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingResolver) Resolve(_ string, approved bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, approved)
	return true
}

func TestConsoleNonInteractiveDenies(t *testing.T) {
	var out strings.Builder
	res := &recordingResolver{}
	c := NewConsole(strings.NewReader("y\n"), &out, res)

	require.NoError(t, c.Notify(context.Background(), consolePrompt()))
	assert.Equal(t, []bool{false}, res.calls)
	assert.Contains(t, out.String(), "no terminal")
}

func TestConsoleInteractiveAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"maybe\ndeny\n", false},
		{"\napprove\n", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out strings.Builder
			res := &recordingResolver{}
			c := NewConsole(strings.NewReader(tt.input), &out, res)
			c.interactive = true

			require.NoError(t, c.Notify(context.Background(), consolePrompt()))
			assert.Equal(t, []bool{tt.want}, res.calls)
			assert.Contains(t, out.String(), "APPROVAL REQUIRED [abcdefghijklmnop]")
		})
	}
}

func TestConsoleEOFDenies(t *testing.T) {
	var out strings.Builder
	res := &recordingResolver{}
	c := NewConsole(strings.NewReader(""), &out, res)
	c.interactive = true

	err := c.Notify(context.Background(), consolePrompt())
	require.Error(t, err)
	assert.Equal(t, []bool{false}, res.calls)
}

func TestConsoleExpiredPromptLeavesInputForNext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	res := &recordingResolver{}
	c := NewConsole(pr, io.Discard, res)
	c.interactive = true

	p := consolePrompt()
	soon := time.Now().Add(20 * time.Millisecond)
	p.ExpiresAt = &soon
	require.NoError(t, c.Notify(context.Background(), p))
	assert.Empty(t, res.calls)

	go func() { _, _ = pw.Write([]byte("y\n")) }()
	require.NoError(t, c.Notify(context.Background(), consolePrompt()))
	assert.Equal(t, []bool{true}, res.calls)
}

func TestConsoleResolvesRegistry(t *testing.T) {
	r := approval.NewRegistry()
	ticket, err := r.Create("shell", nil, model.Classification{Level: model.L2, Reason: "x"}, 0)
	require.NoError(t, err)

	c := NewConsole(strings.NewReader("y\n"), io.Discard, r)
	c.interactive = true
	require.NoError(t, c.Notify(context.Background(), PromptFor(ticket.Pending())))

	out, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Approved)
	assert.Equal(t, approval.StatusApproved, out.Status)
}

func TestConsoleReleasesPromptSettledElsewhere(t *testing.T) {
	r := approval.NewRegistry()
	c2 := model.Classification{Level: model.L2, Reason: "x"}
	first, err := r.Create("shell", map[string]any{"command": "reboot"}, c2, 0)
	require.NoError(t, err)
	second, err := r.Create("shell", map[string]any{"command": "shutdown -h now"}, c2, 0)
	require.NoError(t, err)
	defer r.RejectAll("test done")

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &lockedBuffer{}
	c := NewConsole(pr, out, r)
	c.interactive = true

	done := make(chan error, 1)
	go func() { done <- c.Notify(context.Background(), PromptFor(first.Pending())) }()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Approve?") }, time.Second, 5*time.Millisecond)

	// Settled by another approver, e.g. the HTTP relay.
	require.True(t, r.Resolve(first.Nonce(), false))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console kept waiting on a settled prompt")
	}

	go func() { _, _ = pw.Write([]byte("y\n")) }()
	require.NoError(t, c.Notify(context.Background(), PromptFor(second.Pending())))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := second.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.Zero(t, r.Count())
	assert.Contains(t, out.String(), "resolved elsewhere")
}

type lockedBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestConsoleSkipsPromptSettledWhileQueued(t *testing.T) {
	r := approval.NewRegistry()
	ticket, err := r.Create("shell", nil, model.Classification{Level: model.L2, Reason: "x"}, 0)
	require.NoError(t, err)
	require.True(t, r.Resolve(ticket.Nonce(), true))

	var out strings.Builder
	c := NewConsole(strings.NewReader("n\n"), &out, r)
	c.interactive = true
	require.NoError(t, c.Notify(context.Background(), PromptFor(ticket.Pending())))
	assert.Empty(t, out.String())
}
